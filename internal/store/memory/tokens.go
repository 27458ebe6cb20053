package memory

import (
	"context"
	"sort"
	"time"

	"authcore.org/internal/auth"
)

type tokens struct{ s *Store }

func (t tokens) Create(_ context.Context, in auth.RenewToken) (auth.RenewToken, error) {
	defer t.s.lock()()
	d := t.s.data
	for _, existing := range d.tokens {
		if existing.Token == in.Token {
			return auth.RenewToken{}, conflict("renew token already stored")
		}
	}
	in.ID = d.nextID()
	if in.CreatedAt.IsZero() {
		in.CreatedAt = t.s.now().UTC()
	}
	d.tokens[in.ID] = in
	return in, nil
}

func (t tokens) FindByToken(_ context.Context, token string) (auth.RenewToken, error) {
	defer t.s.lock()()
	for _, v := range t.s.data.tokens {
		if v.Token == token {
			return v, nil
		}
	}
	return auth.RenewToken{}, notFound("renew token")
}

func (t tokens) Delete(_ context.Context, id int64) error {
	defer t.s.lock()()
	if _, ok := t.s.data.tokens[id]; !ok {
		return notFound("renew token")
	}
	delete(t.s.data.tokens, id)
	return nil
}

func (t tokens) ListExpired(_ context.Context, cutoff time.Time, limit int) ([]auth.RenewToken, error) {
	defer t.s.lock()()
	var out []auth.RenewToken
	for _, v := range t.s.data.tokens {
		if v.ExpiryDate.Before(cutoff) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiryDate.Equal(out[j].ExpiryDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].ExpiryDate.Before(out[j].ExpiryDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t tokens) ListByUser(_ context.Context, userID int64, limit int) ([]auth.RenewToken, error) {
	defer t.s.lock()()
	var out []auth.RenewToken
	for _, v := range t.s.data.tokens {
		if v.UserID == userID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
