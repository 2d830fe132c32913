// Package v1alpha1 defines the request and response shapes of the Discover
// and Estimate operations as they travel over the wire (JSON).
package v1alpha1

// EdgeTypeDirected is the only edge type a discovered graph contains.
const EdgeTypeDirected = "directed"

type Node struct {
	Id    int    `json:"id"`
	Label string `json:"label"`
}

type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
	Lag    int    `json:"lag"`
}

// CausalGraph is also the format of ground-truth graph files.
type CausalGraph struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

type DiscoverRequest struct {
	CsvData string `json:"csv_data"`
	// 0 or less selects the default of 3
	MaxLag int `json:"max_lag"`
	// 0 selects the significance level automatically
	PcAlpha float64 `json:"pc_alpha"`
}

type EstimateRequest struct {
	CsvData string       `json:"csv_data"`
	Graph   *CausalGraph `json:"graph"`
}

type ModelInfo struct {
	Features     []string  `json:"features"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

type EstimateResponse struct {
	Models map[string]*ModelInfo `json:"models"`
}

// AnalyzeRequest runs Discover and then Estimate on the discovered graph.
type AnalyzeRequest struct {
	CsvData string  `json:"csv_data"`
	MaxLag  int     `json:"max_lag"`
	PcAlpha float64 `json:"pc_alpha"`
}

type AnalyzeResponse struct {
	Graph    *CausalGraph      `json:"graph"`
	Estimate *EstimateResponse `json:"estimate"`
}

const (
	// new = old * (1 + value)
	ActionIncreaseByPercent = "INCREASE_BY_PERCENT"
	// new = value
	ActionSetToFixed = "SET_TO_FIXED"
)

// Intervention forces one variable during a simulation.
type Intervention struct {
	TargetNode string  `json:"target_node"`
	Action     string  `json:"action"`
	Value      float64 `json:"value"`
}

// SimulateRequest fits the graph's linear models on the table and projects
// every variable Horizon steps past its end, with and without the
// intervention.
type SimulateRequest struct {
	CsvData      string        `json:"csv_data"`
	Graph        *CausalGraph  `json:"graph"`
	Intervention *Intervention `json:"intervention"`
	Horizon      int           `json:"horizon"`
}

type Trajectory struct {
	Original  []float64 `json:"original"`
	Simulated []float64 `json:"simulated"`
}

type SimulateResponse struct {
	Metrics map[string]*Trajectory `json:"metrics"`
}
