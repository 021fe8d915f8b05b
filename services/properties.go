package services

import (
	"strconv"
	"strings"
)

// PostProperties are the externally settable post attributes. Anything not
// listed here is dropped when a request supplies it.
type PostProperties struct {
	Title          *string
	Type           *string
	DisableReplies *bool
	ParentID       uint
}

var allowedPostProperties = map[string]func(*PostProperties, any){
	"title": func(p *PostProperties, v any) {
		if s, ok := v.(string); ok {
			s = strings.TrimSpace(s)
			p.Title = &s
		}
	},
	"type": func(p *PostProperties, v any) {
		if s, ok := v.(string); ok {
			s = strings.ToLower(strings.TrimSpace(s))
			if len(s) <= 32 {
				p.Type = &s
			}
		}
	},
	"disable_replies": func(p *PostProperties, v any) {
		if b, ok := asBool(v); ok {
			p.DisableReplies = &b
		}
	},
	"parent_id": func(p *PostProperties, v any) {
		if id, ok := asUint(v); ok {
			p.ParentID = id
		}
	},
}

// FilterProperties keeps only allow-listed keys with usable values.
func FilterProperties(raw map[string]any) PostProperties {
	var p PostProperties
	for k, v := range raw {
		if apply, ok := allowedPostProperties[k]; ok {
			apply(&p, v)
		}
	}
	return p
}

func asBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(t)
		return b, err == nil
	case float64:
		return t != 0, true
	case int:
		return t != 0, true
	}
	return false, false
}

func asUint(v any) (uint, bool) {
	switch t := v.(type) {
	case uint:
		return t, true
	case int:
		if t >= 0 {
			return uint(t), true
		}
	case int64:
		if t >= 0 {
			return uint(t), true
		}
	case float64:
		if t >= 0 {
			return uint(t), true
		}
	case string:
		n, err := strconv.ParseUint(t, 10, 64)
		return uint(n), err == nil
	}
	return 0, false
}
