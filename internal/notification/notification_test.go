package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type failingNotifier struct{}

func (failingNotifier) Send(context.Context, Message) error { return errors.New("down") }

func TestRedisNotifierPublishes(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	ctx := context.Background()
	sub := cache.Subscribe(ctx, DefaultChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	notifier := NewRedisNotifier(cache, "")
	if err := notifier.Send(ctx, Message{Kind: KindTransferReceived, Destination: "u2", TransactionID: 9}); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var decoded Message
		if err := json.Unmarshal([]byte(msg.Payload), &decoded); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded.Destination != "u2" || decoded.TransactionID != 9 {
			t.Fatalf("unexpected message %+v", decoded)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no message published")
	}
}

func TestFanoutDeliversDespiteFailure(t *testing.T) {
	rec := &Recorder{}
	err := Fanout{failingNotifier{}, rec}.Send(context.Background(), Message{Kind: KindTransferReceived})
	if err == nil {
		t.Fatalf("expected joined error")
	}
	if len(rec.Messages()) != 1 {
		t.Fatalf("expected recorder to receive the message")
	}
}
