package models

// PollOption is one answer choice. Votes must equal the number of response
// entries pointing at this option id.
type PollOption struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Votes int    `json:"votes"`
}

// Poll is one multiple-choice question. Responses maps participant id to the
// chosen option id and is the authoritative vote record.
type Poll struct {
	ID              string            `json:"id"`
	Question        string            `json:"question"`
	Options         []*PollOption     `json:"options"`
	IsActive        bool              `json:"isActive"`
	StartTime       int64             `json:"startTime,omitempty"` // unix milliseconds, set on activation
	Duration        int               `json:"duration"`            // seconds; expiry is enforced client-side
	Responses       map[string]string `json:"responses"`
	CorrectOptionID string            `json:"correctOptionId,omitempty"`
}

// FindOption returns the option with the given id, or nil.
func (p *Poll) FindOption(optionID string) *PollOption {
	for _, opt := range p.Options {
		if opt.ID == optionID {
			return opt
		}
	}
	return nil
}

// Clone returns a deep copy, safe to use outside the session lock.
func (p *Poll) Clone() *Poll {
	cp := *p
	cp.Options = make([]*PollOption, len(p.Options))
	for i, opt := range p.Options {
		o := *opt
		cp.Options[i] = &o
	}
	cp.Responses = make(map[string]string, len(p.Responses))
	for k, v := range p.Responses {
		cp.Responses[k] = v
	}
	return &cp
}
