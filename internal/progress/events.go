package progress

import "encoding/json"

// EventType is the wire discriminant of an event.
type EventType string

const (
	TypeStarted          EventType = "started"
	TypeStep             EventType = "step"
	TypeItem             EventType = "item"
	TypeBatchProgress    EventType = "batch_progress"
	TypeCompleted        EventType = "completed"
	TypeError            EventType = "error"
	TypeCountryStarted   EventType = "country_started"
	TypeCountryProgress  EventType = "country_progress"
	TypeCountryCompleted EventType = "country_completed"
	TypeAllCompleted     EventType = "all_completed"
)

// Event is one progress event. Consumers switch on the concrete type.
type Event interface {
	Type() EventType
}

// Counts are running totals for one country.
type Counts struct {
	Processed int `json:"totalProcessed"`
	Applied   int `json:"applied"`
	Validated int `json:"validated"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Add returns the element-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		Processed: c.Processed + o.Processed,
		Applied:   c.Applied + o.Applied,
		Validated: c.Validated + o.Validated,
		Skipped:   c.Skipped + o.Skipped,
		Failed:    c.Failed + o.Failed,
	}
}

// Succeeded is the country success rule: no failures, or at least one
// applied or validated result.
func (c Counts) Succeeded() bool {
	return c.Failed == 0 || c.Applied+c.Validated > 0
}

// Started opens a country run.
type Started struct {
	CountryCode  string `json:"countryCode"`
	TotalAreas   int    `json:"totalAreas"`
	TotalBatches int    `json:"totalBatches"`
	DryRun       bool   `json:"dryRun"`
}

// Step marks an ingestion step.
type Step struct {
	Name    string `json:"step"`
	Message string `json:"message"`
	Count   int    `json:"count,omitempty"`
}

// Item is the decision for one naming result.
type Item struct {
	BatchIndex  int     `json:"batchIndex"`
	AreaID      string  `json:"areaId,omitempty"`
	AdmID       string  `json:"admId"`
	Name        string  `json:"name"`
	NameEn      string  `json:"nameEn,omitempty"`
	NameJa      string  `json:"nameJa,omitempty"`
	Confidence  float64 `json:"confidence"`
	Disposition string  `json:"disposition"`
	Reason      string  `json:"reason,omitempty"`
}

// BatchProgress closes one batch with running totals.
type BatchProgress struct {
	BatchIndex   int    `json:"batchIndex"`
	TotalBatches int    `json:"totalBatches"`
	BatchSize    int    `json:"batchSize"`
	Counts
	Error string `json:"error,omitempty"`
}

// Completed closes a country run.
type Completed struct {
	Counts
	ElapsedMs int64 `json:"elapsedMs"`
}

// Error terminates a country run that failed at the top level.
type Error struct {
	Message string `json:"message"`
}

// CountryStarted opens one country of a multi-country run.
type CountryStarted struct {
	CountryCode    string `json:"countryCode"`
	CountryIndex   int    `json:"countryIndex"`
	TotalCountries int    `json:"totalCountries"`
}

// CountryProgress relabels an inner event within a multi-country run.
type CountryProgress struct {
	CountryCode  string
	CountryIndex int
	Inner        Event
}

// CountryCompleted closes one country of a multi-country run.
type CountryCompleted struct {
	CountryCode  string `json:"countryCode"`
	CountryIndex int    `json:"countryIndex"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Counts
	ElapsedMs int64 `json:"elapsedMs"`
}

// AllCompleted closes a multi-country run.
type AllCompleted struct {
	SuccessCount int   `json:"successCount"`
	FailCount    int   `json:"failCount"`
	ElapsedMs    int64 `json:"elapsedMs"`
}

func (Started) Type() EventType          { return TypeStarted }
func (Step) Type() EventType             { return TypeStep }
func (Item) Type() EventType             { return TypeItem }
func (BatchProgress) Type() EventType    { return TypeBatchProgress }
func (Completed) Type() EventType        { return TypeCompleted }
func (Error) Type() EventType            { return TypeError }
func (CountryStarted) Type() EventType   { return TypeCountryStarted }
func (CountryProgress) Type() EventType  { return TypeCountryProgress }
func (CountryCompleted) Type() EventType { return TypeCountryCompleted }
func (AllCompleted) Type() EventType     { return TypeAllCompleted }

// MarshalJSON carries the inner event opaquely with its type.
func (e CountryProgress) MarshalJSON() ([]byte, error) {
	var innerType EventType
	if e.Inner != nil {
		innerType = e.Inner.Type()
	}
	return json.Marshal(struct {
		CountryCode  string    `json:"countryCode"`
		CountryIndex int       `json:"countryIndex"`
		InnerType    EventType `json:"innerType"`
		Data         Event     `json:"data"`
	}{e.CountryCode, e.CountryIndex, innerType, e.Inner})
}

// Encode renders e as {"type": ..., ...payload}.
func Encode(e Event) ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, 1)
	}
	t, _ := json.Marshal(e.Type())
	fields["type"] = t
	return json.Marshal(fields)
}
