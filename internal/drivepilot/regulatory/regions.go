package regulatory

// Feature names gated by regional compliance rules.
const (
	FeatureDriverMonitoring      = "driver_monitoring"
	FeatureAdaptiveSpeedLimiting = "adaptive_speed_limiting"
	FeatureOTAUpdates            = "ota_updates"
	FeatureObstacleDetection     = "obstacle_detection"
	FeatureAutonomousParking     = "autonomous_parking"
	FeatureHighwayAutopilot      = "highway_autopilot"
	FeatureTrafficLightDetection = "traffic_light_detection"
)

// allFeatures is the complete drive-pilot feature catalog used to compute
// blocked sets.
var allFeatures = []string{
	FeatureDriverMonitoring,
	FeatureAdaptiveSpeedLimiting,
	FeatureOTAUpdates,
	FeatureObstacleDetection,
	FeatureAutonomousParking,
	FeatureHighwayAutopilot,
	FeatureTrafficLightDetection,
}

// Region is one regulatory jurisdiction. The table is process-wide static
// configuration, read-only after package initialization.
type Region struct {
	Name            string
	Code            string
	AllowedFeatures []string
	MaxSpeed        float64 // km/h, 0 means unspecified
}

// Allows reports whether the feature is permitted in this region.
func (r Region) Allows(feature string) bool {
	for _, f := range r.AllowedFeatures {
		if f == feature {
			return true
		}
	}
	return false
}

var regions = map[string]Region{
	"US": {
		Name: "United States",
		Code: "US",
		AllowedFeatures: []string{
			FeatureDriverMonitoring, FeatureAdaptiveSpeedLimiting,
			FeatureOTAUpdates, FeatureObstacleDetection,
		},
		MaxSpeed: 130.0,
	},
	"EU": {
		Name: "European Union",
		Code: "EU",
		AllowedFeatures: []string{
			FeatureDriverMonitoring, FeatureAdaptiveSpeedLimiting,
			FeatureOTAUpdates, FeatureObstacleDetection, FeatureHighwayAutopilot,
		},
		MaxSpeed: 120.0,
	},
	"JP": {
		Name: "Japan",
		Code: "JP",
		AllowedFeatures: []string{
			FeatureDriverMonitoring, FeatureAdaptiveSpeedLimiting,
			FeatureObstacleDetection, FeatureTrafficLightDetection,
		},
		MaxSpeed: 100.0,
	},
	"CN": {
		Name: "China",
		Code: "CN",
		AllowedFeatures: []string{
			FeatureDriverMonitoring, FeatureObstacleDetection,
		},
		MaxSpeed: 120.0,
	},
}

// boundingBox is a coarse static geofence. Real geofencing is out of scope.
type boundingBox struct {
	code           string
	minLat, maxLat float64
	minLon, maxLon float64
}

func (b boundingBox) contains(lat, lon float64) bool {
	return lat >= b.minLat && lat <= b.maxLat && lon >= b.minLon && lon <= b.maxLon
}

// boxes are checked in a fixed priority order; overlaps resolve to the
// earlier entry.
var boxes = []boundingBox{
	{code: "US", minLat: 25.0, maxLat: 49.0, minLon: -125.0, maxLon: -66.0},
	{code: "EU", minLat: 35.0, maxLat: 71.0, minLon: -10.0, maxLon: 40.0},
	{code: "JP", minLat: 30.0, maxLat: 46.0, minLon: 129.0, maxLon: 146.0},
	{code: "CN", minLat: 18.0, maxLat: 54.0, minLon: 73.0, maxLon: 135.0},
}

// RegionForPosition resolves a GPS coordinate to a regulatory region. It is
// a pure function; positions outside every box default to US.
func RegionForPosition(lat, lon float64) Region {
	for _, b := range boxes {
		if b.contains(lat, lon) {
			return regions[b.code]
		}
	}
	return regions["US"]
}

// RegionByCode looks up a region by its code.
func RegionByCode(code string) (Region, bool) {
	r, ok := regions[code]
	return r, ok
}

// RegionCodes lists the known region codes.
func RegionCodes() []string {
	return []string{"US", "EU", "JP", "CN"}
}
