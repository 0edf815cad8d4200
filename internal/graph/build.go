package graph

// New constructs the canonical tutoring graph: greeting leads into mode
// selection, which splits into the guided-study branch (looping through
// assessment) and the free-conversation branch (looping through
// free_conversation_eval) (spec §4.1's node catalogue).
func New() *Graph {
	g := NewGraph(NodeGreeting)
	g.AddNode(NodeGreeting, nodeGreeting)
	g.AddNode(NodeModeSelectionPrompt, nodeModeSelectionPrompt)
	g.AddNode(NodeModeSelection, nodeModeSelection)
	g.AddNode(NodeRetrieveCards, nodeRetrieveCards)
	g.AddNode(NodeConversation, nodeConversation)
	g.AddNode(NodeAssessment, nodeAssessment)
	g.AddNode(NodeFreeConversation, nodeFreeConversation)
	g.AddNode(NodeFreeConversationEval, nodeFreeConversationEval)
	g.AddNode(NodeTools, nodeTools)
	return g
}
