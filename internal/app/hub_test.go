package app

import (
	"testing"

	"pair-quiz-service/internal/domain"
)

func TestHubDropsStaleViewsForSlowSubscribers(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.subscribe("g1", domain.GameView{ID: "g1"})
	defer cancel()

	for i := 0; i < 20; i++ {
		hub.publish(domain.GameView{ID: "g1", FirstPlayerProgress: domain.PlayerProgress{Score: i}})
	}

	var last domain.GameView
	for len(ch) > 0 {
		last = <-ch
	}
	if last.FirstPlayerProgress.Score != 19 {
		t.Fatalf("expected newest view to be kept, got score %d", last.FirstPlayerProgress.Score)
	}
}

func TestHubCancelRemovesSubscriber(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.subscribe("g1", domain.GameView{ID: "g1"})
	<-ch

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if hub.subscriberCount("g1") != 0 {
		t.Fatalf("expected no subscribers left")
	}

	hub.publish(domain.GameView{ID: "g1"})
}

func TestHubIsolatesGames(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.subscribe("g1", domain.GameView{ID: "g1"})
	defer cancel()
	<-ch

	hub.publish(domain.GameView{ID: "g2"})
	if len(ch) != 0 {
		t.Fatalf("expected no cross-game updates")
	}
}
