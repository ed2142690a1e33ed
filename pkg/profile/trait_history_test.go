package profile_test

import (
	"context"

	"github.com/xksnk/selfology-core/pkg/events"
	"github.com/xksnk/selfology-core/pkg/profile"
)

func bgCtx() context.Context { return context.Background() }

type fakeHistoryStore struct {
	values   map[string][]float64
	appended []profile.TraitHistoryEntry
}

func (s *fakeHistoryStore) Append(ctx context.Context, entry profile.TraitHistoryEntry) error {
	s.appended = append(s.appended, entry)
	return nil
}

func (s *fakeHistoryStore) RecentValues(ctx context.Context, userID, traitName string, limit int) ([]float64, error) {
	return s.values[userID+"|"+traitName], nil
}

type fakeEvoBus struct {
	published []events.Envelope
}

func (b *fakeEvoBus) Publish(ctx context.Context, env events.Envelope) error {
	b.published = append(b.published, env)
	return nil
}
