package models

// Participant is a joined student. The id is regenerated on every join, so it
// is not stable across reconnects; the display name is the only session-stable
// credential.
type Participant struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	JoinedAt    int64  `json:"joinedAt"` // unix milliseconds
	HasAnswered bool   `json:"hasAnswered"`
}

// Session is one teacher-run polling room. Field names match the wire format
// consumed by the existing clients.
type Session struct {
	ID               string                  `json:"id"`
	TeacherID        string                  `json:"teacherId"`
	Students         map[string]*Participant `json:"students"`
	Polls            []*Poll                 `json:"polls"`
	CurrentPollIndex int                     `json:"currentPollIndex"` // -1 = none
	JoinCode         string                  `json:"joinCode"`
	KickedStudents   []string                `json:"kickedStudents"` // display names, not ids
}

// FindPoll returns the poll with the given id, or nil.
func (s *Session) FindPoll(pollID string) *Poll {
	for _, p := range s.Polls {
		if p.ID == pollID {
			return p
		}
	}
	return nil
}

// NameTaken reports whether any rostered participant has the exact name.
func (s *Session) NameTaken(name string) bool {
	for _, st := range s.Students {
		if st.Name == name {
			return true
		}
	}
	return false
}

// IsKicked reports whether the name is blacklisted in this session.
func (s *Session) IsKicked(name string) bool {
	for _, n := range s.KickedStudents {
		if n == name {
			return true
		}
	}
	return false
}
