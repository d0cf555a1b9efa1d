package inbox

import (
	"sort"

	"github.com/TobiSchelling/Supernova/internal/social"
)

var replyTemplates = map[string]string{
	"thanks": "Thank you for your feedback! We really appreciate you taking the time to share your thoughts with us.",
	"sorry":  "We sincerely apologize for the inconvenience you've experienced. We're working to resolve this issue as quickly as possible.",
	"help":   "We're here to help! Please let us know if you need any additional assistance or have any other questions.",
}

// ReplyTemplate returns the canned reply text for name.
func (s *Service) ReplyTemplate(name string) (string, error) {
	text, ok := replyTemplates[name]
	if !ok {
		return "", social.Validationf("", "unknown reply template %q, choose one of %v", name, TemplateNames())
	}
	return text, nil
}

// TemplateNames lists the available reply templates.
func TemplateNames() []string {
	names := make([]string, 0, len(replyTemplates))
	for n := range replyTemplates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
