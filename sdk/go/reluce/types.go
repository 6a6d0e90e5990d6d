package reluce

import "time"

// Operation is one cleaning pass as it travels on the wire. The operations
// endpoints speak the localized (Spanish) field schema; the JSON tags here
// mirror it so callers work with Go names.
type Operation struct {
	ID           string     `json:"id"`
	Room         string     `json:"habitacion"`
	RoomType     string     `json:"tipo"`
	StartTime    time.Time  `json:"horaInicio"`
	EndTime      *time.Time `json:"horaFin,omitempty"`
	SessionID    *string    `json:"sesionId,omitempty"`
	Complete     bool       `json:"completada"`
	Failed       bool       `json:"fallida,omitempty"`
	FailurePhoto *string    `json:"fotoFallo,omitempty"`
	Reason       *string    `json:"razon,omitempty"`
	Steps        []Step     `json:"pasos"`
	CreatedAt    time.Time  `json:"creadoEn,omitempty"`
	UpdatedAt    time.Time  `json:"editadoEn,omitempty"`
}

// Step is one checklist item within an operation on the wire.
type Step struct {
	ID             int        `json:"id"`
	StartTime      time.Time  `json:"horaInicio"`
	CompletedTime  *time.Time `json:"horaCompletado,omitempty"`
	ElapsedSeconds *int64     `json:"duracionSegundos,omitempty"`
	Photo          *string    `json:"foto,omitempty"`
	Verdict        *Verdict   `json:"validacion,omitempty"`
	Corrected      bool       `json:"corregido,omitempty"`
	Ignored        bool       `json:"ignorado,omitempty"`
	Failed         bool       `json:"fallido,omitempty"`
	PhotoCategory  *string    `json:"categoriaFoto,omitempty"`
}

// Verdict is a photo validation outcome as embedded in a localized
// operation payload.
type Verdict struct {
	Valid    bool   `json:"valido"`
	Expected string `json:"esperado"`
	Found    string `json:"encontrado"`
}

// ValidationResult is the verdict returned by the standalone validation
// endpoint, which speaks the canonical schema.
type ValidationResult struct {
	Valid    bool   `json:"valid"`
	Expected string `json:"expected"`
	Found    string `json:"found"`
}

// StoredOperation mirrors the server's canonical operation record. The
// sweep endpoints return canonical (English) field names.
type StoredOperation struct {
	ID        string     `json:"id"`
	Room      string     `json:"room"`
	RoomType  string     `json:"roomType"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Complete  bool       `json:"complete"`
	Reason    *string    `json:"reason,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// SweepResult is the outcome of an auto-close inspect or commit.
type SweepResult struct {
	Count      int              `json:"count"`
	Operations []SweptOperation `json:"operations"`
}

// SweptOperation is a stale operation matched by the auto-close scan.
type SweptOperation struct {
	Operation     StoredOperation `json:"operation"`
	DurationHours float64         `json:"duration_hours"`
}

// PhotoUpload is the result of storing photo evidence.
type PhotoUpload struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// HealthResponse reports server liveness.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int    `json:"uptime_seconds"`
}
