package xcomm

import (
	"context"
	"testing"
)

func BenchmarkMessage_ParameterLookup(b *testing.B) {
	msg := NewMessageBuilder().WithParam("test", int32(1123)).BuildFor("test_event")

	b.ReportAllocs()
	for b.Loop() {
		if _, ok, err := Get[int32](msg, "test"); !ok || err != nil {
			b.Fatal("lookup failed")
		}
	}
}

func BenchmarkMessage_Construction(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		_ = NewMessageBuilder().WithParam("test", int32(1123)).BuildFor("test message")
	}
}

func BenchmarkCommunicator_Send(b *testing.B) {
	comm, closeFn, err := New(func(cb *CommunicatorBuilder) {
		// keep the logging observer out of the measurement
		cb.WithObserver(LoggingObserver{})
	})
	if err != nil {
		b.Fatal(err)
	}
	defer func() { _ = closeFn() }()

	rx, err := comm.Register(987654321)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	b.ReportAllocs()
	for b.Loop() {
		msg := comm.NewMessage().WithParam("test", int32(1123)).BuildFor(987654321)
		if err := comm.Send(ctx, msg); err != nil {
			b.Fatal(err)
		}
		rx.Receive()
	}
}
