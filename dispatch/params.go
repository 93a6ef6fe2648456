package dispatch

type (
	// Params holds the decoded "parameters" object of a request.
	Params map[string]interface{}
)

// String returns the named parameter, which must be present and be a JSON
// string.
func (p Params) String(name string) (string, error) {
	v, ok := p[name]
	if !ok || v == nil {
		return "", MissingParameters{Name: name}
	}
	s, ok := v.(string)
	if !ok {
		return "", InvalidParameters{Name: name}
	}
	return s, nil
}

// Strings reads every name in order and stops at the first failure.
func (p Params) Strings(names ...string) ([]string, error) {
	out := make([]string, len(names))
	for i, n := range names {
		var err error
		out[i], err = p.String(n)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// OneOf returns the first of names present in p, this is how actions accept
// either a token or a session.
func (p Params) OneOf(names ...string) (string, error) {
	for _, n := range names {
		if _, ok := p[n]; ok {
			return p.String(n)
		}
	}
	return "", MissingParameters{Name: names[0]}
}
