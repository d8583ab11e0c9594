package aggregator

// ResourceKey names one independently fetched backend resource.
type ResourceKey string

const (
	KeyProfile      ResourceKey = "profile"
	KeyResumeOrder  ResourceKey = "resumeOrder"
	KeyEducation    ResourceKey = "education"
	KeyExperience   ResourceKey = "experience"
	KeySkills       ResourceKey = "skills"
	KeyPortfolio    ResourceKey = "portfolio"
	KeyBlog         ResourceKey = "blog"
	KeyCertificates ResourceKey = "certificates"
	KeyTeam         ResourceKey = "team"
	KeyServices     ResourceKey = "services"
	KeySettings     ResourceKey = "settings"
)

// AllKeys lists every resource in a stable order.
var AllKeys = []ResourceKey{
	KeyProfile,
	KeyResumeOrder,
	KeyEducation,
	KeyExperience,
	KeySkills,
	KeyPortfolio,
	KeyBlog,
	KeyCertificates,
	KeyTeam,
	KeyServices,
	KeySettings,
}

type endpointPair struct {
	public string
	admin  string
}

var endpoints = map[ResourceKey]endpointPair{
	KeyProfile:      {"/user/data", "/admin/user"},
	KeyResumeOrder:  {"/resume", "/admin/resume"},
	KeyEducation:    {"/education", "/admin/education"},
	KeyExperience:   {"/experience", "/admin/experience"},
	KeySkills:       {"/skill", "/admin/skill"},
	KeyPortfolio:    {"/portfolio", "/admin/portfolio"},
	KeyBlog:         {"/blog", "/admin/blog"},
	KeyCertificates: {"/certificate", "/admin/certification"},
	KeyTeam:         {"/team", "/admin/team"},
	KeyServices:     {"/service", "/admin/service"},
	KeySettings:     {"/setting", "/admin/setting"},
}

// listFields are the domain-named wrappers tried, in order, after the
// generic data/items unwrapping fails.
var listFields = map[ResourceKey][]string{
	KeyServices:     {"services", "service"},
	KeyCertificates: {"certificates", "certificate", "certifications"},
	KeyTeam:         {"team", "teams"},
	KeyBlog:         {"posts", "blogs", "blog"},
	KeyPortfolio:    {"projects", "portfolios", "portfolio"},
	KeyEducation:    {"educations", "education"},
	KeyExperience:   {"experiences", "experience"},
	KeySkills:       {"skills", "skill"},
}

// Endpoint returns the path for k. Authenticated callers read the admin
// surface.
func (k ResourceKey) Endpoint(authenticated bool) string {
	ep, ok := endpoints[k]
	if !ok {
		return ""
	}
	if authenticated {
		return ep.admin
	}
	return ep.public
}

// IsList reports whether k normalizes to a collection.
func (k ResourceKey) IsList() bool {
	_, ok := listFields[k]
	return ok
}
