package repository

import (
	"context"
	"errors"
	"sync"

	"pikacloud/backend/internal/db"
	roledomain "pikacloud/backend/internal/role/domain"
	userdomain "pikacloud/backend/internal/user/domain"
)

// errMissingRef mirrors a foreign key violation.
var errMissingRef = errors.New("store: referenced row does not exist")

type memState struct {
	users       map[string]userdomain.User // by id
	usernames   map[string]string          // username -> user id
	roles       map[string]roledomain.Role // by id
	roleNames   map[string]string          // name -> role id
	assignments []roledomain.Assignment
}

func newMemState() *memState {
	return &memState{
		users:     make(map[string]userdomain.User),
		usernames: make(map[string]string),
		roles:     make(map[string]roledomain.Role),
		roleNames: make(map[string]string),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		users:       make(map[string]userdomain.User, len(s.users)),
		usernames:   make(map[string]string, len(s.usernames)),
		roles:       make(map[string]roledomain.Role, len(s.roles)),
		roleNames:   make(map[string]string, len(s.roleNames)),
		assignments: append([]roledomain.Assignment(nil), s.assignments...),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.usernames {
		c.usernames[k] = v
	}
	for k, v := range s.roles {
		c.roles[k] = v
	}
	for k, v := range s.roleNames {
		c.roleNames[k] = v
	}
	return c
}

// MemoryStore is an in-process Store with the same uniqueness rules as the Postgres schema.
// Transactions are serialized and applied atomically on commit. For development and tests.
type MemoryStore struct {
	txMu  *sync.Mutex // held by writers and for the whole of a transaction
	mu    sync.RWMutex
	state *memState
	bound bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{txMu: &sync.Mutex{}, state: newMemState()}
}

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (*userdomain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (*userdomain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.state.usernames[username]
	if !ok {
		return nil, nil
	}
	u := s.state.users[id]
	return &u, nil
}

func (s *MemoryStore) CreateUser(_ context.Context, u *userdomain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	return s.write(func(st *memState) error {
		if _, ok := st.usernames[u.Username]; ok {
			return db.ErrDuplicate
		}
		if _, ok := st.users[u.ID]; ok {
			return db.ErrDuplicate
		}
		st.users[u.ID] = *u
		st.usernames[u.Username] = u.ID
		return nil
	})
}

func (s *MemoryStore) UpdatePasswordHash(_ context.Context, userID, passwordHash string) error {
	return s.write(func(st *memState) error {
		u, ok := st.users[userID]
		if !ok {
			return nil
		}
		u.PasswordHash = passwordHash
		st.users[userID] = u
		return nil
	})
}

func (s *MemoryStore) GetRoleByName(_ context.Context, name string) (*roledomain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.state.roleNames[name]
	if !ok {
		return nil, nil
	}
	r := s.state.roles[id]
	return &r, nil
}

func (s *MemoryStore) CreateRole(_ context.Context, r *roledomain.Role) error {
	return s.write(func(st *memState) error {
		if _, ok := st.roleNames[r.Name]; ok {
			return db.ErrDuplicate
		}
		st.roles[r.ID] = *r
		st.roleNames[r.Name] = r.ID
		return nil
	})
}

func (s *MemoryStore) CreateUserRole(_ context.Context, a *roledomain.Assignment) error {
	return s.write(func(st *memState) error {
		if _, ok := st.users[a.UserID]; !ok {
			return errMissingRef
		}
		if _, ok := st.roles[a.RoleID]; !ok {
			return errMissingRef
		}
		for _, existing := range st.assignments {
			if existing.UserID == a.UserID && existing.RoleID == a.RoleID {
				return db.ErrDuplicate
			}
		}
		st.assignments = append(st.assignments, *a)
		return nil
	})
}

func (s *MemoryStore) ListUserRoles(_ context.Context, userID string) ([]*roledomain.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*roledomain.Assignment
	for _, a := range s.state.assignments {
		if a.UserID == userID {
			a := a
			out = append(out, &a)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListRolesByIDs(_ context.Context, ids []string) ([]*roledomain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*roledomain.Role
	for _, id := range ids {
		if r, ok := s.state.roles[id]; ok {
			out = append(out, &r)
		}
	}
	return out, nil
}

// InTx runs fn against a private copy of the state and publishes it when fn succeeds.
func (s *MemoryStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.bound {
		return fn(s)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	view := &MemoryStore{txMu: s.txMu, state: s.state.clone(), bound: true}
	s.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(view); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = view.state
	s.mu.Unlock()
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// write applies fn under the writer locks. Bound views are owned by their transaction.
func (s *MemoryStore) write(fn func(*memState) error) error {
	if !s.bound {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}
