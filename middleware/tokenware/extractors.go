package tokenware

import (
	"strings"

	"github.com/goliatone/go-router"
)

// Extractor pulls a raw token out of the request, returning "" when the
// source does not carry one.
type Extractor func(c router.Context) string

func (cfg *Config) extractors() []Extractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

// GetExtractors parses a token lookup expression into its extractor chain.
// Format: "header:Authorization,cookie:jwt,query:token,param:token".
func GetExtractors(tokenLookup string, authSchemes ...string) []Extractor {
	authScheme := "Bearer"
	if len(authSchemes) > 0 {
		authScheme = authSchemes[0]
	}

	extractors := make([]Extractor, 0)

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")
		if len(parts) != 2 {
			continue
		}

		source := strings.TrimSpace(parts[0])
		name := strings.TrimSpace(parts[1])

		switch source {
		case "header":
			extractors = append(extractors, tokenFromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, tokenFromQuery(name))
		case "param":
			extractors = append(extractors, tokenFromParam(name))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(name))
		}
	}

	return extractors
}

func extractRawToken(ctx router.Context, extractors []Extractor) string {
	for _, extractor := range extractors {
		if raw := extractor(ctx); raw != "" {
			return raw
		}
	}
	return ""
}

// tokenFromHeader reads "<scheme> <token>" from the named header. A header
// that is absent or does not carry the scheme prefix yields no token rather
// than an error, so requests with unrelated Authorization schemes fall
// through as anonymous.
func tokenFromHeader(header, authScheme string) Extractor {
	scheme := strings.TrimSpace(authScheme)
	return func(c router.Context) string {
		value := c.GetString(header, "")
		l := len(scheme)
		if l == 0 || len(value) <= l+1 {
			return ""
		}
		if !strings.EqualFold(value[:l], scheme) || value[l] != ' ' {
			return ""
		}
		return strings.TrimSpace(value[l+1:])
	}
}

func tokenFromQuery(param string) Extractor {
	return func(c router.Context) string {
		return c.Query(param, "")
	}
}

func tokenFromParam(param string) Extractor {
	return func(c router.Context) string {
		return c.Param(param)
	}
}

func tokenFromCookie(name string) Extractor {
	return func(c router.Context) string {
		return c.Cookies(name)
	}
}
