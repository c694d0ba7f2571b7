package model

// Vector is a flat feature mapping assembled per scoring request.
// Lookups of unknown names yield zero rather than an error, so model
// schemas can evolve independently of the feature producers.
type Vector map[string]float64

func (v Vector) Get(name string) float64 {
	if v == nil {
		return 0
	}
	return v[name]
}

func (v Vector) Set(name string, val float64) {
	v[name] = val
}

// Merge copies src into v, prefixing every key.
func (v Vector) Merge(prefix string, src Vector) {
	for k, val := range src {
		v[prefix+k] = val
	}
}
