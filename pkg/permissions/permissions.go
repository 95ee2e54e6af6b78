// Package permissions derives portal roles from the scopes carried by an
// identity-provider token. Scopes look like "<POLICY>.<ACCESS>", for example
// "PROGRAMDATA-PACA-CA.WRITE".
package permissions

import (
	"sort"
	"strings"
)

const (
	AccessRead  = "READ"
	AccessWrite = "WRITE"
	AccessDeny  = "DENY"

	policyProgramService = "PROGRAMSERVICE"
	policyClinical       = "CLINICALSERVICE"
	prefixProgram        = "PROGRAM-"
	prefixProgramData    = "PROGRAMDATA-"
	prefixRDPC           = "RDPC-"
)

type Scope struct {
	Policy string
	Access string
}

// Parse splits a scope string on its last dot. Malformed scopes are skipped.
func Parse(scopes []string) []Scope {
	out := make([]Scope, 0, len(scopes))
	for _, s := range scopes {
		i := strings.LastIndex(s, ".")
		if i <= 0 || i == len(s)-1 {
			continue
		}
		out = append(out, Scope{Policy: s[:i], Access: strings.ToUpper(s[i+1:])})
	}
	return out
}

// Set is the parsed scope list of one user.
type Set struct {
	scopes []Scope
}

func New(scopes []string) Set {
	return Set{scopes: Parse(scopes)}
}

func (s Set) has(policy string, accesses ...string) bool {
	for _, sc := range s.scopes {
		if sc.Policy != policy {
			continue
		}
		for _, a := range accesses {
			if sc.Access == a {
				return true
			}
		}
	}
	return false
}

func (s Set) IsDccMember() bool {
	return s.has(policyProgramService, AccessWrite)
}

func (s Set) IsClinicalAdmin() bool {
	return s.IsDccMember() || s.has(policyClinical, AccessWrite)
}

func (s Set) IsRdpcMember() bool {
	for _, sc := range s.scopes {
		if strings.HasPrefix(sc.Policy, prefixRDPC) && sc.Access != AccessDeny {
			return true
		}
	}
	return false
}

func (s Set) IsProgramAdmin(shortName string) bool {
	return s.IsDccMember() || s.has(prefixProgram+shortName, AccessWrite)
}

func (s Set) CanReadProgram(shortName string) bool {
	return s.IsDccMember() || s.has(prefixProgram+shortName, AccessRead, AccessWrite) || s.CanReadProgramData(shortName)
}

func (s Set) CanReadProgramData(shortName string) bool {
	return s.IsDccMember() || s.IsRdpcMember() || s.has(prefixProgramData+shortName, AccessRead, AccessWrite)
}

func (s Set) CanWriteProgramData(shortName string) bool {
	return s.IsDccMember() || s.has(prefixProgramData+shortName, AccessWrite)
}

// ReadableProgramShortNames lists programs the user was explicitly granted
// read or write on, sorted.
func (s Set) ReadableProgramShortNames() []string {
	return s.programNames(AccessRead, AccessWrite)
}

func (s Set) WritableProgramShortNames() []string {
	return s.programNames(AccessWrite)
}

func (s Set) CanReadSomeProgram() bool {
	return s.IsDccMember() || len(s.ReadableProgramShortNames()) > 0
}

func (s Set) programNames(accesses ...string) []string {
	seen := make(map[string]bool)
	for _, sc := range s.scopes {
		var name string
		switch {
		case strings.HasPrefix(sc.Policy, prefixProgramData):
			name = strings.TrimPrefix(sc.Policy, prefixProgramData)
		case strings.HasPrefix(sc.Policy, prefixProgram):
			name = strings.TrimPrefix(sc.Policy, prefixProgram)
		default:
			continue
		}
		for _, a := range accesses {
			if sc.Access == a && name != "" {
				seen[name] = true
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Landing is the page a user is sent to after login.
func (s Set) Landing() string {
	switch {
	case s.IsDccMember():
		return "/submission/all"
	case len(s.ReadableProgramShortNames()) > 0:
		return "/submission/program/" + s.ReadableProgramShortNames()[0]
	default:
		return "/"
	}
}

// Summary is the role view returned to clients.
type Summary struct {
	IsDccMember      bool     `json:"isDccMember"`
	IsRdpcMember     bool     `json:"isRdpcMember"`
	IsClinicalAdmin  bool     `json:"isClinicalAdmin"`
	ReadablePrograms []string `json:"readablePrograms"`
	WritablePrograms []string `json:"writablePrograms"`
	AdminPrograms    []string `json:"adminPrograms"`
	LandingPage      string   `json:"landingPage"`
}

func (s Set) Summary() Summary {
	var admin []string
	for _, name := range s.WritableProgramShortNames() {
		if s.has(prefixProgram+name, AccessWrite) {
			admin = append(admin, name)
		}
	}
	return Summary{
		IsDccMember:      s.IsDccMember(),
		IsRdpcMember:     s.IsRdpcMember(),
		IsClinicalAdmin:  s.IsClinicalAdmin(),
		ReadablePrograms: s.ReadableProgramShortNames(),
		WritablePrograms: s.WritableProgramShortNames(),
		AdminPrograms:    admin,
		LandingPage:      s.Landing(),
	}
}
