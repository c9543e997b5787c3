package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/ButyrinIA/blogsync/internal/models"
	"github.com/ButyrinIA/blogsync/internal/storage"
	"github.com/graph-gophers/dataloader/v7"
)

type loadersKey struct{}

// loaders batch author lookups made while serving one request.
type loaders struct {
	users *dataloader.Loader[string, *models.User]
}

func (s *Server) newLoaders() *loaders {
	return &loaders{
		users: dataloader.NewBatchedLoader(s.batchUsers),
	}
}

func (s *Server) batchUsers(ctx context.Context, ids []string) []*dataloader.Result[*models.User] {
	results := make([]*dataloader.Result[*models.User], len(ids))
	users, err := s.storage.GetUsers(ctx, ids)
	for i, id := range ids {
		switch {
		case err != nil:
			results[i] = &dataloader.Result[*models.User]{Error: err}
		case users[id] == nil:
			results[i] = &dataloader.Result[*models.User]{Error: storage.ErrNotFound}
		default:
			results[i] = &dataloader.Result[*models.User]{Data: users[id]}
		}
	}
	return results
}

func (s *Server) withLoaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), loadersKey{}, s.newLoaders())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loadersFrom(ctx context.Context) *loaders {
	l, _ := ctx.Value(loadersKey{}).(*loaders)
	return l
}

func (l *loaders) user(ctx context.Context, id string) (*models.User, error) {
	return l.users.Load(ctx, id)()
}

// identities resolves every id in one batch. Unknown authors come back as an
// identity carrying only the id.
func (l *loaders) identities(ctx context.Context, ids []string) (map[string]models.Identity, error) {
	thunks := make(map[string]dataloader.Thunk[*models.User], len(ids))
	for _, id := range ids {
		if _, ok := thunks[id]; !ok {
			thunks[id] = l.users.Load(ctx, id)
		}
	}

	out := make(map[string]models.Identity, len(thunks))
	for id, thunk := range thunks {
		user, err := thunk()
		switch {
		case err == nil:
			out[id] = user.Identity
		case errors.Is(err, storage.ErrNotFound):
			out[id] = models.Identity{ID: id}
		default:
			return nil, err
		}
	}
	return out, nil
}
