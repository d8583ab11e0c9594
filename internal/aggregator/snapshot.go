package aggregator

import (
	"sort"
	"time"
)

// Portfolio is the normalized project listing.
type Portfolio struct {
	Projects   []Record `json:"projects"`
	Categories []string `json:"categories"`
	Extra      Record   `json:"extra"`
}

// Snapshot is the canonical view produced by one aggregation run. It is
// never mutated after publication; callers get clones.
type Snapshot struct {
	Profile      Record          `json:"profile"`
	Settings     Record          `json:"settings"`
	Services     []Record        `json:"services"`
	Certificates []Record        `json:"certificates"`
	Team         []Record        `json:"team"`
	Blog         []Record        `json:"blog"`
	Portfolio    Portfolio       `json:"portfolio"`
	Education    []Record        `json:"education"`
	Experience   []Record        `json:"experience"`
	Skills       []Record        `json:"skills"`
	ResumeOrder  []string        `json:"resume_order"`
	Resume       []ResumeSection `json:"resume"`

	Degraded      []ResourceKey `json:"degraded"`
	TimedOut      bool          `json:"timed_out"`
	Authenticated bool          `json:"authenticated"`
	GeneratedAt   time.Time     `json:"generated_at"`
}

// emptySnapshot has every value present and empty.
func emptySnapshot() *Snapshot {
	return &Snapshot{
		Profile:      Record{},
		Settings:     Record{},
		Services:     []Record{},
		Certificates: []Record{},
		Team:         []Record{},
		Blog:         []Record{},
		Portfolio: Portfolio{
			Projects:   []Record{},
			Categories: []string{"all"},
			Extra:      Record{},
		},
		Education:   []Record{},
		Experience:  []Record{},
		Skills:      []Record{},
		ResumeOrder: append([]string(nil), DefaultResumeOrder...),
		Degraded:    []ResourceKey{},
	}
}

// List returns the normalized list for a list resource, nil otherwise.
func (s *Snapshot) List(key ResourceKey) []Record {
	switch key {
	case KeyServices:
		return s.Services
	case KeyCertificates:
		return s.Certificates
	case KeyTeam:
		return s.Team
	case KeyBlog:
		return s.Blog
	case KeyPortfolio:
		return s.Portfolio.Projects
	case KeyEducation:
		return s.Education
	case KeyExperience:
		return s.Experience
	case KeySkills:
		return s.Skills
	}
	return nil
}

// IsDegraded reports whether key failed or missed the deadline.
func (s *Snapshot) IsDegraded(key ResourceKey) bool {
	for _, k := range s.Degraded {
		if k == key {
			return true
		}
	}
	return false
}

func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Profile = s.Profile.Clone()
	out.Settings = s.Settings.Clone()
	out.Services = cloneRecords(s.Services)
	out.Certificates = cloneRecords(s.Certificates)
	out.Team = cloneRecords(s.Team)
	out.Blog = cloneRecords(s.Blog)
	out.Portfolio = Portfolio{
		Projects:   cloneRecords(s.Portfolio.Projects),
		Categories: append([]string(nil), s.Portfolio.Categories...),
		Extra:      s.Portfolio.Extra.Clone(),
	}
	out.Education = cloneRecords(s.Education)
	out.Experience = cloneRecords(s.Experience)
	out.Skills = cloneRecords(s.Skills)
	out.ResumeOrder = append([]string(nil), s.ResumeOrder...)
	out.Resume = make([]ResumeSection, len(s.Resume))
	for i, sec := range s.Resume {
		out.Resume[i] = ResumeSection{Type: sec.Type, Data: cloneRecords(sec.Data)}
	}
	out.Degraded = append([]ResourceKey{}, s.Degraded...)
	return &out
}

func sortKeys(keys []ResourceKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
}
