package model

// DefaultFloor is assigned to doors without a known floor.
const DefaultFloor = "1"

// Door is a resolved access-control device with its onion-model attributes.
type Door struct {
	DoorID         string        `json:"door_id" yaml:"door_id"`
	Floor          string        `json:"floor" yaml:"floor"`
	SecurityLevel  SecurityLevel `json:"security_level" yaml:"security_level"`
	MostCommonNext string        `json:"most_common_next,omitempty" yaml:"most_common_next,omitempty"`
	OnionLayer     int           `json:"onion_layer" yaml:"onion_layer"`
	EventCount     int           `json:"event_count" yaml:"event_count"`
	IsEntranceExit bool          `json:"is_entrance_exit" yaml:"is_entrance_exit"`
	IsStair        bool          `json:"is_stair" yaml:"is_stair"`
	IsCritical     bool          `json:"is_critical" yaml:"is_critical"`
	Isolated       bool          `json:"isolated" yaml:"isolated"`
}

// AnomalyKind names a non-fatal condition found while processing.
type AnomalyKind string

// Anomaly kinds.
const (
	AnomalyClassificationMismatch AnomalyKind = "classification_mismatch"
	AnomalyGraphUnreachable       AnomalyKind = "graph_unreachable"
	AnomalyRestrictedEntrance     AnomalyKind = "restricted_entrance"
	AnomalyFloorOutOfRange        AnomalyKind = "floor_out_of_range"
	AnomalyNoData                 AnomalyKind = "no_data"
	AnomalyHighPeakActivity       AnomalyKind = "high_peak_activity"
	AnomalyLowCompliance          AnomalyKind = "low_compliance"
)

// AnomalyFlag is a warning surfaced to the operator alongside the results.
type AnomalyFlag struct {
	Kind    AnomalyKind `json:"kind" yaml:"kind"`
	DoorID  string      `json:"door_id,omitempty" yaml:"door_id,omitempty"`
	Message string      `json:"message" yaml:"message"`
}
