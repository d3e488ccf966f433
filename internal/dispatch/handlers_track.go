package dispatch

import "context"

func registerTrackVerbs(d *Dispatcher) {
	d.registerRead("track", BundleTrack, handleTrack)
}

func handleTrack(d *Dispatcher, ctx context.Context, actor Actor, params map[string]any) (any, error) {
	target, err := getString(params, "target", true)
	if err != nil {
		return nil, err
	}
	depth := getInt(params, "depth", 10)
	return d.Coord.Core.Track(target, depth)
}
