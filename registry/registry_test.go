package registry

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"
)

type handle struct{ id string }

func TestRegisterUserConnection_SetSemantics(t *testing.T) {
	r := New[*handle]()
	c := &handle{id: "c1"}

	r.RegisterUserConnection("u1", c)
	r.RegisterUserConnection("u1", c)

	if got := len(r.ConnectionsFor("u1")); got != 1 {
		t.Fatalf("expected 1 connection after duplicate register, got %d", got)
	}
}

func TestUnregisterUserConnection_DropsEmptyEntries(t *testing.T) {
	r := New[*handle]()
	c1, c2 := &handle{id: "c1"}, &handle{id: "c2"}

	r.RegisterUserConnection("u1", c1)
	r.RegisterUserConnection("u1", c2)

	if removed := r.UnregisterUserConnection(c1); len(removed) != 1 || removed[0] != "u1" {
		t.Fatalf("expected removal from u1, got %v", removed)
	}
	if st := r.Stats(); st.Users != 1 || st.Connections != 1 {
		t.Fatalf("unexpected stats after first removal: %+v", st)
	}

	r.UnregisterUserConnection(c2)
	if _, ok := r.users["u1"]; ok {
		t.Fatalf("expected u1 entry to be deleted once its set is empty")
	}
	if got := r.ConnectionsFor("u1"); got != nil {
		t.Fatalf("expected nil snapshot, got %v", got)
	}
}

func TestUnregisterUserConnection_ScansEveryEntry(t *testing.T) {
	r := New[*handle]()
	c := &handle{id: "shared"}

	r.RegisterUserConnection("u1", c)
	r.RegisterUserConnection("u2", c)

	removed := r.UnregisterUserConnection(c)
	sort.Strings(removed)
	if fmt.Sprint(removed) != "[u1 u2]" {
		t.Fatalf("expected removal from both users, got %v", removed)
	}
	if st := r.Stats(); st.Users != 0 {
		t.Fatalf("expected no users left, got %+v", st)
	}
}

func TestUnregisterUserConnection_UnknownHandle(t *testing.T) {
	r := New[*handle]()
	r.RegisterUserConnection("u1", &handle{id: "c1"})

	if removed := r.UnregisterUserConnection(&handle{id: "other"}); removed != nil {
		t.Fatalf("expected no removals, got %v", removed)
	}
	if got := len(r.ConnectionsFor("u1")); got != 1 {
		t.Fatalf("expected u1 untouched, got %d connections", got)
	}
}

func TestNoEmptySetsUnderRandomOperations(t *testing.T) {
	r := New[*handle]()
	handles := make([]*handle, 8)
	for i := range handles {
		handles[i] = &handle{id: fmt.Sprintf("c%d", i)}
	}
	users := []string{"u1", "u2", "u3"}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		h := handles[rng.Intn(len(handles))]
		if rng.Intn(2) == 0 {
			r.RegisterUserConnection(users[rng.Intn(len(users))], h)
		} else {
			r.UnregisterUserConnection(h)
		}

		r.usersMu.Lock()
		for u, set := range r.users {
			if len(set) == 0 {
				r.usersMu.Unlock()
				t.Fatalf("step %d: user %s has an empty set", i, u)
			}
		}
		r.usersMu.Unlock()
	}
}

func TestRegisterSessionConnection_LastWriteWins(t *testing.T) {
	r := New[*handle]()
	c1, c2 := &handle{id: "c1"}, &handle{id: "c2"}

	if _, replaced := r.RegisterSessionConnection("s1", c1); replaced {
		t.Fatalf("first registration must not report a replacement")
	}
	prev, replaced := r.RegisterSessionConnection("s1", c2)
	if !replaced || prev != c1 {
		t.Fatalf("expected c1 to be reported as superseded, got %v %v", prev, replaced)
	}

	got, ok := r.ConnectionFor("s1")
	if !ok || got != c2 {
		t.Fatalf("expected c2 bound to s1, got %v", got)
	}

	// Re-registering the same handle is not a replacement.
	if _, replaced := r.RegisterSessionConnection("s1", c2); replaced {
		t.Fatalf("re-registering the bound handle must not report a replacement")
	}
}

func TestUnregisterSessionConnection(t *testing.T) {
	r := New[*handle]()
	c1, c2 := &handle{id: "c1"}, &handle{id: "c2"}

	r.RegisterSessionConnection("s1", c1)
	r.RegisterSessionConnection("s1", c2)

	// c1 was superseded, so removing it must leave the c2 binding in place.
	if _, ok := r.UnregisterSessionConnection(c1); ok {
		t.Fatalf("superseded handle should not match any binding")
	}
	if got, ok := r.ConnectionFor("s1"); !ok || got != c2 {
		t.Fatalf("expected c2 to remain bound")
	}

	id, ok := r.UnregisterSessionConnection(c2)
	if !ok || id != "s1" {
		t.Fatalf("expected s1 to be removed, got %q %v", id, ok)
	}
	if _, ok := r.ConnectionFor("s1"); ok {
		t.Fatalf("expected s1 to be unbound")
	}
}

func TestAll_Deduplicates(t *testing.T) {
	r := New[*handle]()
	c1, c2, c3 := &handle{id: "c1"}, &handle{id: "c2"}, &handle{id: "c3"}

	r.RegisterUserConnection("u1", c1)
	r.RegisterUserConnection("u1", c2)
	r.RegisterUserConnection("u2", c3)
	r.RegisterUserConnection("u2", c1)

	if got := len(r.All()); got != 3 {
		t.Fatalf("expected 3 distinct connections, got %d", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New[*handle]()
	c1 := &handle{id: "c1"}
	r.RegisterUserConnection("u1", c1)

	snap := r.ConnectionsFor("u1")
	r.UnregisterUserConnection(c1)

	if len(snap) != 1 || snap[0] != c1 {
		t.Fatalf("snapshot changed after unregister: %v", snap)
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New[*handle]()
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h := &handle{id: fmt.Sprintf("c%d", i)}
			user := fmt.Sprintf("u%d", i%4)
			sess := fmt.Sprintf("s%d", i)
			for j := 0; j < 200; j++ {
				r.RegisterUserConnection(user, h)
				r.RegisterSessionConnection(sess, h)
				_ = r.ConnectionsFor(user)
				_ = r.All()
				_, _ = r.ConnectionFor(sess)
				r.UnregisterSessionConnection(h)
				r.UnregisterUserConnection(h)
			}
		}(i)
	}
	wg.Wait()

	if st := r.Stats(); st != (Stats{}) {
		t.Fatalf("expected empty registry, got %+v", st)
	}
}
