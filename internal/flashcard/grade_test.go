package flashcard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGradeActiveCard(t *testing.T) {
	tests := []struct {
		name       string
		activeCard string
		assessment string
		wantEmpty  bool
		wantEase   int
	}{
		{
			name:       "high mastery clamps to ease 4",
			activeCard: "Deck: JP-N4 | ID: 1234567890 | Front: ...",
			assessment: "OVERALL_MASTERY: 5 - excellent recall",
			wantEase:   4,
		},
		{
			name:       "mid mastery keeps its value",
			activeCard: "ID: 42",
			assessment: "OVERALL_MASTERY: 2 - hesitant but correct",
			wantEase:   2,
		},
		{
			name:       "no card id yields no-op",
			activeCard: "",
			assessment: "OVERALL_MASTERY: 3",
			wantEmpty:  true,
		},
		{
			name:       "no mastery match yields no-op",
			activeCard: "ID: 99",
			assessment: "NO_ASSESSMENT",
			wantEmpty:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotEase int
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var body map[string]any
				_ = json.NewDecoder(r.Body).Decode(&body)
				action := body["action"].(string)
				switch action {
				case "relearnCards":
					w.Write([]byte(`{"result":null,"error":null}`))
				case "answerCards":
					params := body["params"].(map[string]any)
					answers := params["answers"].([]any)
					first := answers[0].(map[string]any)
					gotEase = int(first["ease"].(float64))
					w.Write([]byte(`{"result":null,"error":null}`))
				}
			}))
			defer server.Close()

			client := New(server.URL, 2*time.Second)
			summary, err := client.GradeActiveCard(context.Background(), tt.activeCard, tt.assessment)
			require.NoError(t, err)

			if tt.wantEmpty {
				require.Empty(t, summary)
				return
			}
			require.NotEmpty(t, summary)
			require.Equal(t, tt.wantEase, gotEase)
		})
	}
}
