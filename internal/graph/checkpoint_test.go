package graph

import "testing"

func TestMemoryCheckpointer_SaveLoadDelete(t *testing.T) {
	cp := NewMemoryCheckpointer()

	if _, ok := cp.Load("missing"); ok {
		t.Fatal("load of an unknown thread should report not-found")
	}

	want := &Checkpoint{State: &State{Counter: 1}, AwaitingNode: NodeGreeting, Prompt: "hi"}
	cp.Save("t1", want)

	got, ok := cp.Load("t1")
	if !ok {
		t.Fatal("expected the saved checkpoint to be found")
	}
	if got.AwaitingNode != NodeGreeting || got.Prompt != "hi" {
		t.Fatalf("loaded checkpoint does not match saved one: %+v", got)
	}
	if !got.Waiting() {
		t.Fatal("a checkpoint with a non-empty prompt should report Waiting() == true")
	}

	cp.Delete("t1")
	if _, ok := cp.Load("t1"); ok {
		t.Fatal("expected the thread's checkpoint to be gone after Delete")
	}
}

func TestCheckpoint_WaitingRequiresPrompt(t *testing.T) {
	cp := &Checkpoint{AwaitingNode: NodeFreeConversation}
	if cp.Waiting() {
		t.Fatal("a checkpoint with no prompt is a fresh-entry node, not a suspended one")
	}
}
