package server

import (
	"errors"

	"github.com/Achbite/Server-System/pkg/protocol"
	"github.com/Achbite/Server-System/pkg/store"
)

// Lock ordering: handlers always finish with the account store lock
// (inside store calls) before touching the session table lock (inside
// Bind/Evict/Unbind). The two locks are never held at the same time,
// which rules out an ordering cycle between concurrent logins and
// conflict resolutions.

func success(text string) protocol.Message {
	return protocol.NewMessage(protocol.RespSuccess, text)
}

func failure(text string) protocol.Message {
	return protocol.NewMessage(protocol.RespError, text)
}

// storeFailure maps store errors onto wire error responses.
func storeFailure(err error) protocol.Message {
	switch {
	case errors.Is(err, store.ErrAccountExists):
		return failure("account id already exists")
	case errors.Is(err, store.ErrEmptyCredentials):
		return failure("account id and password must not be empty")
	case errors.Is(err, store.ErrNoSuchAccount):
		return failure("account does not exist")
	case errors.Is(err, store.ErrBadPassword):
		return failure("wrong password")
	default:
		return failure("internal error")
	}
}

func (s *Server) handleRegister(sess *Session, id, password string) protocol.Message {
	if err := s.store.Register(id, password); err != nil {
		return storeFailure(err)
	}
	s.log.Info().Str("session", sess.ID[:8]).Str("account", id).Msg("account registered")
	return success("account registered")
}

// handleLogin authenticates the session against the account store and
// binds the account unless another live session already holds it, in
// which case the client gets a CONFLICT carrying the existing session's
// id and must follow up with FORCE_LOGIN. Nothing is mutated on the
// conflict path.
func (s *Server) handleLogin(sess *Session, id, password string) protocol.Message {
	if sess.LoggedIn() {
		return failure("a user is already logged in on this session")
	}
	if err := s.store.Verify(id, password); err != nil {
		return storeFailure(err)
	}

	existingID, ok := s.sessions.Bind(sess, id)
	if !ok {
		return protocol.NewMessage(protocol.RespConflict,
			"account is already logged in on another client",
			existingID,
			"kick the other session and log in here? (Y/N)")
	}

	s.log.Info().Str("session", sess.ID[:8]).Str("account", id).Msg("login")
	return success("login successful")
}

// handleForceLogin resolves a prior CONFLICT. The conflict window is not
// race-free, so everything is re-checked: credentials, the caller's
// login state, and whether a bound session still exists. With force set,
// the existing session (if any) is sent a KICKED notice, unbound and
// marked inactive; its own worker tears the connection down. The
// evictor never closes the victim's socket.
func (s *Server) handleForceLogin(sess *Session, id, password string, force bool) protocol.Message {
	if sess.LoggedIn() {
		return failure("a user is already logged in on this session")
	}
	if err := s.store.Verify(id, password); err != nil {
		return storeFailure(err)
	}

	if !force {
		return failure("login cancelled")
	}

	victim := s.sessions.Evict(id)
	if victim != nil {
		// Outside the session table lock: a send may block on a slow
		// peer and must not stall other logins.
		victim.Send(protocol.NewMessage(protocol.RespKicked,
			"your account logged in elsewhere, this connection is terminated"))
		s.metrics.RecordEviction()
		s.log.Info().
			Str("account", id).
			Str("evicted", victim.ID[:8]).
			Str("session", sess.ID[:8]).
			Msg("session evicted by forced login")
	}

	if _, ok := s.sessions.Bind(sess, id); !ok {
		// Another session grabbed the account between Evict and Bind.
		return failure("account is still active in another session")
	}

	if victim != nil {
		return success("login successful, previous session kicked")
	}
	return success("login successful")
}

func (s *Server) handleLogout(sess *Session) protocol.Message {
	if !sess.LoggedIn() {
		return failure("no user is logged in")
	}
	account := sess.Account()
	s.sessions.Unbind(sess)
	s.log.Info().Str("session", sess.ID[:8]).Str("account", account).Msg("logout")
	return success("logout successful")
}

func (s *Server) handleDelete(sess *Session, id, password string) protocol.Message {
	if err := s.store.Delete(id, password); err != nil {
		return storeFailure(err)
	}
	if sess.Account() == id {
		s.sessions.Unbind(sess)
	}
	s.log.Info().Str("session", sess.ID[:8]).Str("account", id).Msg("account deleted")
	return success("account deleted")
}

func (s *Server) handleChangePassword(sess *Session, oldPassword, newPassword string) protocol.Message {
	if !sess.LoggedIn() {
		return failure("please log in first")
	}
	if err := s.store.ChangePassword(sess.Account(), oldPassword, newPassword); err != nil {
		return storeFailure(err)
	}
	return success("password changed")
}

func (s *Server) handleSetString(sess *Session, value string) protocol.Message {
	if !sess.LoggedIn() {
		return failure("please log in first")
	}
	if err := s.store.SetProfile(sess.Account(), value); err != nil {
		return storeFailure(err)
	}
	return success("profile string updated")
}

func (s *Server) handleGetString(sess *Session) protocol.Message {
	if !sess.LoggedIn() {
		return failure("please log in first")
	}
	value, err := s.store.GetProfile(sess.Account())
	if err != nil {
		return storeFailure(err)
	}
	return success(value)
}
