package workflow

// PageState tracks how far the remote radar site has been driven. States form
// a documented total order: a step gated on a state may run once the page has
// reached that state or any later one, so gating compares with >=.
type PageState int

const (
	StateInitial PageState = iota
	StateHomepageLoaded
	StateSearchModalOpen
	StateSearchResultsVisible
	StateForecastPageLoaded
	StateRadarPageLoaded
	StateMapReady
	StateSlideshowPaused
	StateFrame0Selected
)

// AtLeast reports whether the page has progressed to min or beyond.
func (s PageState) AtLeast(min PageState) bool { return s >= min }

func (s PageState) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateHomepageLoaded:
		return "homepage_loaded"
	case StateSearchModalOpen:
		return "search_modal_open"
	case StateSearchResultsVisible:
		return "search_results_visible"
	case StateForecastPageLoaded:
		return "forecast_page_loaded"
	case StateRadarPageLoaded:
		return "radar_page_loaded"
	case StateMapReady:
		return "map_ready"
	case StateSlideshowPaused:
		return "slideshow_paused"
	case StateFrame0Selected:
		return "frame_0_selected"
	}
	return "unknown"
}
