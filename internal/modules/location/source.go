// README: Position sources.
package location

import "pulse/internal/types"

// StaticSource emits a single fixed position. Used when no live device
// feed is attached, e.g. demo deployments pinned to one venue.
type StaticSource struct {
	point types.Point
}

func NewStaticSource(p types.Point) *StaticSource {
	return &StaticSource{point: p}
}

func (s *StaticSource) Watch(onUpdate func(types.Point), _ func(error)) (func(), error) {
	if onUpdate != nil {
		onUpdate(s.point)
	}
	return func() {}, nil
}
