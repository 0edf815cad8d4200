package flashcard

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
)

var (
	cardIDPattern  = regexp.MustCompile(`ID: (\d+)`)
	masteryPattern = regexp.MustCompile(`OVERALL_MASTERY: (\d)`)
)

// GradeActiveCard implements the assessment-to-grade post-processing: it
// pulls the card id out of the stored active-card string and the overall
// mastery score out of the assessment text, clamps mastery >= 4 to ease 4,
// relearns the card to bring it into the learning queue, then answers it.
// It returns a human-readable summary of what happened, or an empty string
// if either the card or assessment did not contain a usable value.
func (c *Client) GradeActiveCard(ctx context.Context, activeCard, assessment string) (string, error) {
	if activeCard == "" || assessment == "" {
		return "", nil
	}

	idMatch := cardIDPattern.FindStringSubmatch(activeCard)
	if idMatch == nil {
		return "", nil
	}
	cardID, err := strconv.ParseInt(idMatch[1], 10, 64)
	if err != nil {
		return "", nil
	}

	masteryMatch := masteryPattern.FindStringSubmatch(assessment)
	if masteryMatch == nil {
		return "", nil
	}
	mastery, err := strconv.Atoi(masteryMatch[1])
	if err != nil || mastery <= 0 || mastery > 5 {
		return "", nil
	}
	if mastery >= 4 {
		mastery = 4
	}

	if err := c.RelearnCards(ctx, []int64{cardID}); err != nil {
		return "", err
	}
	if err := c.AnswerCard(ctx, cardID, mastery); err != nil {
		return "", err
	}

	return fmt.Sprintf("Card call for ID: %d with ease: %d", cardID, mastery), nil
}
