package events

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan FrameStatsEvent, 1)

	unsub := bus.Subscribe(func(e FrameStatsEvent) {
		received <- e
	})
	defer unsub()

	event := FrameStatsEvent{
		DevicePath: "/dev/video0",
		Frames:     30,
		EmptyPolls: 12,
		FPS:        29.97,
		Timestamp:  "2025-01-27T10:30:00Z",
	}
	bus.Publish(event)

	got := <-received
	if got.DevicePath != event.DevicePath || got.Frames != 30 {
		t.Errorf("got %+v, want %+v", got, event)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan CaptureStartedEvent, 1)
	received2 := make(chan CaptureStartedEvent, 1)

	unsub1 := bus.Subscribe(func(e CaptureStartedEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e CaptureStartedEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(CaptureStartedEvent{
		DevicePath: "/dev/video0",
		Format:     "640x480 YUYV",
		Buffers:    4,
	})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan CaptureErrorEvent, 1)

	unsub := bus.Subscribe(func(e CaptureErrorEvent) {
		received <- e
	})

	bus.Publish(CaptureErrorEvent{DevicePath: "/dev/video0"})
	<-received

	unsub()

	bus.Publish(CaptureErrorEvent{DevicePath: "/dev/video1"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
		// Expected - no event
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	statsReceived := make(chan bool, 1)
	savedReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ FrameStatsEvent) {
		statsReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ FrameSavedEvent) {
		savedReceived <- true
	})
	defer unsub2()

	bus.Publish(FrameStatsEvent{DevicePath: "/dev/video0"})
	<-statsReceived

	select {
	case <-savedReceived:
		t.Fatal("FrameSaved subscriber should NOT have received FrameStatsEvent")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}

	bus.Publish(FrameSavedEvent{Path: "output/frame_001.raw"})
	<-savedReceived

	select {
	case <-statsReceived:
		t.Fatal("FrameStats subscriber should NOT have received FrameSavedEvent")
	case <-time.After(10 * time.Millisecond):
		// Expected
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ DeviceDiscoveryEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(DeviceDiscoveryEvent{
					Action:    "added",
					Timestamp: time.Now().Format(time.RFC3339),
				})
			}
		}()
	}

	wg.Wait()

	// Read all expected events
	for range expected {
		<-receivedCh
	}
}

func TestBus_AllEventTypes(t *testing.T) {
	bus := New()

	tests := []struct {
		name  string
		event Event
	}{
		{"CaptureStarted", CaptureStartedEvent{DevicePath: "/dev/video0"}},
		{"CaptureStopped", CaptureStoppedEvent{DevicePath: "/dev/video0"}},
		{"CaptureError", CaptureErrorEvent{DevicePath: "/dev/video0"}},
		{"FrameStats", FrameStatsEvent{DevicePath: "/dev/video0"}},
		{"FrameSaved", FrameSavedEvent{Path: "output/frame_001.raw"}},
		{"DeviceDiscovery", DeviceDiscoveryEvent{Action: "added"}},
		{"LogEntry", LogEntryEvent{Message: "hello"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(_ *testing.T) {
			received := make(chan Event, 1)

			var unsub func()
			switch tt.event.(type) {
			case CaptureStartedEvent:
				unsub = bus.Subscribe(func(e CaptureStartedEvent) { received <- e })
			case CaptureStoppedEvent:
				unsub = bus.Subscribe(func(e CaptureStoppedEvent) { received <- e })
			case CaptureErrorEvent:
				unsub = bus.Subscribe(func(e CaptureErrorEvent) { received <- e })
			case FrameStatsEvent:
				unsub = bus.Subscribe(func(e FrameStatsEvent) { received <- e })
			case FrameSavedEvent:
				unsub = bus.Subscribe(func(e FrameSavedEvent) { received <- e })
			case DeviceDiscoveryEvent:
				unsub = bus.Subscribe(func(e DeviceDiscoveryEvent) { received <- e })
			case LogEntryEvent:
				unsub = bus.Subscribe(func(e LogEntryEvent) { received <- e })
			}
			defer unsub()

			bus.Publish(tt.event)
			<-received
		})
	}
}

func TestEventJSONSerialization(t *testing.T) {
	tests := []struct {
		name  string
		event any
	}{
		{
			"FrameStatsEvent",
			FrameStatsEvent{
				DevicePath: "/dev/video0",
				Frames:     30,
				EmptyPolls: 3,
				Saved:      1,
				FPS:        29.97,
				Timestamp:  "2025-01-27T10:30:00Z",
			},
		},
		{
			"FrameSavedEvent",
			FrameSavedEvent{
				DevicePath: "/dev/video0",
				Path:       "output/frame_003.raw",
				Bytes:      614400,
				Timestamp:  "2025-01-27T10:30:00Z",
			},
		},
		{
			"CaptureStartedEvent",
			CaptureStartedEvent{
				DevicePath: "/dev/video0",
				Format:     "640x480 YUYV",
				Buffers:    4,
				Timestamp:  "2025-01-27T10:30:00Z",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("Failed to marshal: %v", err)
			}

			var result map[string]any
			if unmarshalErr := json.Unmarshal(data, &result); unmarshalErr != nil {
				t.Fatalf("Failed to unmarshal: %v", unmarshalErr)
			}

			if len(result) == 0 {
				t.Fatal("Unmarshaled to empty object")
			}
		})
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 10)

	unsub := SubscribeToChannel[FrameSavedEvent](bus, ch)
	defer unsub()

	event := FrameSavedEvent{
		DevicePath: "/dev/video0",
		Path:       "output/frame_001.raw",
	}
	bus.Publish(event)

	received := <-ch
	savedEvent, ok := received.(FrameSavedEvent)
	if !ok {
		t.Fatalf("Expected FrameSavedEvent, got %T", received)
	}
	if savedEvent.Path != event.Path {
		t.Errorf("Expected path %s, got %s", event.Path, savedEvent.Path)
	}
}

func TestSubscribeToChannel_NonBlocking(_ *testing.T) {
	bus := New()
	ch := make(chan any) // No buffer

	unsub := SubscribeToChannel[CaptureStartedEvent](bus, ch)
	defer unsub()

	done := make(chan bool, 1)
	go func() {
		bus.Publish(CaptureStartedEvent{DevicePath: "/dev/video0"})
		done <- true
	}()

	<-done // Should complete without blocking
}
