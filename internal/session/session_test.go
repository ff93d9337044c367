package session

import "testing"

func TestAddUserDefaultWriteCapability(t *testing.T) {
	s := New(NewID(), []byte("rv"), nil)
	u := s.AddUser("alice")
	if !u.CanWrite {
		t.Fatal("with no write-verifier, every user should default to CanWrite=true")
	}

	s2 := New(NewID(), []byte("rv"), []byte("wv"))
	u2 := s2.AddUser("bob")
	if u2.CanWrite {
		t.Fatal("with a write-verifier configured, a fresh user defaults to CanWrite=false")
	}
	s2.GrantWrite(u2.ID)
	if !s2.User(u2.ID).CanWrite {
		t.Fatal("GrantWrite should flip CanWrite")
	}
}

func TestShellWindowClamped(t *testing.T) {
	s := New(NewID(), []byte("rv"), nil)
	sh := s.CreateShell(1, Window{Rows: 1, Cols: 1})
	if sh.Window.Rows != MinRows || sh.Window.Cols != MinCols {
		t.Fatalf("window not clamped: %+v", sh.Window)
	}
}

func TestUserIDsNeverReused(t *testing.T) {
	s := New(NewID(), []byte("rv"), nil)
	a := s.AddUser("a")
	s.RemoveUser(a.ID)
	b := s.AddUser("b")
	if b.ID == a.ID {
		t.Fatalf("user ID %d reused after removal", b.ID)
	}
}

func TestIDIsTenChars(t *testing.T) {
	id := NewID()
	if len(id) != 10 {
		t.Fatalf("session ID length = %d, want 10", len(id))
	}
}
