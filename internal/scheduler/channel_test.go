package scheduler

import (
	"testing"
	"time"

	"simplane/internal/sim"
)

func TestChannel_PreservesOrder(t *testing.T) {
	c := NewChannel()
	for i := int64(1); i <= 3; i++ {
		c.Send(sim.Initializing(i))
	}
	if c.Len() != 3 {
		t.Fatalf("expected 3 buffered messages, got %d", c.Len())
	}

	for i := int64(1); i <= 3; i++ {
		msg, ok := c.Receive()
		if !ok {
			t.Fatalf("Receive %d reported closed", i)
		}
		if msg.JobID != i {
			t.Errorf("expected job %d, got %d", i, msg.JobID)
		}
	}
}

func TestChannel_ReceiveBlocksUntilSend(t *testing.T) {
	c := NewChannel()
	got := make(chan sim.Message, 1)
	go func() {
		msg, _ := c.Receive()
		got <- msg
	}()

	select {
	case <-got:
		t.Fatal("Receive returned before anything was sent")
	case <-time.After(20 * time.Millisecond):
	}

	c.Send(sim.Finished(9))
	select {
	case msg := <-got:
		if msg.JobID != 9 || msg.Status != sim.StatusFinished {
			t.Errorf("unexpected message %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not wake up")
	}
}

func TestChannel_CloseDrainsThenStops(t *testing.T) {
	c := NewChannel()
	c.Send(sim.Finished(1))
	c.Close()

	if c.Send(sim.Finished(2)) {
		t.Error("expected Send after Close to be rejected")
	}
	if msg, ok := c.Receive(); !ok || msg.JobID != 1 {
		t.Errorf("expected the buffered message, got %+v %v", msg, ok)
	}
	if _, ok := c.Receive(); ok {
		t.Error("expected Receive to report closed")
	}
}

func TestChannel_CloseWakesReceiver(t *testing.T) {
	c := NewChannel()
	done := make(chan bool, 1)
	go func() {
		_, ok := c.Receive()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	c.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected closed result")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the receiver")
	}
}
