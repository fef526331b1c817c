package session

import (
	"context"
	"testing"
)

func TestObservers_FanOut(t *testing.T) {
	first, second := &testObserver{}, &testObserver{}
	o := NewOrchestrator(RetentionEphemeral, WithObserver(Observers{first, second}))
	o.Register(&testAgent{name: "a", panics: true})

	run, err := o.Start(context.Background(), testSession("s"), newTestSource(2), &testTranscriber{})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitClosed(t, run.Done(), "loop exit")
	stopWithin(t, o)

	for i, obs := range []*testObserver{first, second} {
		if len(obs.started) != 1 || len(obs.endedList()) != 1 || obs.dispatched != 2 || len(obs.faultList()) != 2 {
			t.Errorf("observer %d: started=%d ended=%d dispatched=%d faults=%d",
				i, len(obs.started), len(obs.endedList()), obs.dispatched, len(obs.faultList()))
		}
	}
}
