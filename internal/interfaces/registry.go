package interfaces

import (
	"context"

	"github.com/ternarybob/convoca/internal/models"
)

// RegistryItem is one row of the registry's paginated listing.
// Extra is the verbatim wire payload; unknown fields are preserved there.
type RegistryItem struct {
	ExternalID string `json:"numeroConvocatoria" validate:"required"`
	Titulo     string `json:"descripcion"`
	Organismo  string `json:"nivel1,omitempty"`
	Extra      []byte `json:"-"`
}

// RegistrySearchResponse is the paginated listing envelope
type RegistrySearchResponse struct {
	Content       []RegistryItem `json:"content" validate:"required"`
	TotalElements int            `json:"totalElements"`
	TotalPages    int            `json:"totalPages"`
	Page          int            `json:"number"`
}

// RegistryDocument is one document reference in a grant detail payload
type RegistryDocument struct {
	ID       string `json:"id"`
	Filename string `json:"nombreFic"`
	URL      string `json:"url,omitempty"`
}

// GrantDetail is the full metadata payload for one grant
type GrantDetail struct {
	ExternalID        string             `json:"numeroConvocatoria" validate:"required"`
	Titulo            string             `json:"descripcion"`
	DescripcionLarga  string             `json:"descripcionFinalidad,omitempty"`
	Organismo         string             `json:"organo,omitempty"`
	Nivel1            string             `json:"nivel1,omitempty"`
	Nivel2            string             `json:"nivel2,omitempty"`
	Nivel3            string             `json:"nivel3,omitempty"`
	Finalidad         string             `json:"finalidad,omitempty"`
	Sectores          []string           `json:"sectores,omitempty"`
	TiposBeneficiario []string           `json:"tiposBeneficiario,omitempty"`
	Regiones          []string           `json:"regiones,omitempty"`
	Ambito            string             `json:"ambito,omitempty"`
	FechaInicio       string             `json:"fechaInicioSolicitud,omitempty"`
	FechaFin          string             `json:"fechaFinSolicitud,omitempty"`
	ImporteTotal      float64            `json:"importeTotal,omitempty"`
	Abierta           bool               `json:"abierto,omitempty"`
	Documentos        []RegistryDocument `json:"documentos,omitempty"`
	Extra             []byte             `json:"-"`
}

// RegistryClient talks to the remote grants HTTP API
type RegistryClient interface {
	// Search lists grants matching the controlled filter set. size is capped at 100.
	Search(ctx context.Context, opts models.SearchOptions, page, size int) (*RegistrySearchResponse, error)

	// GetDetail fetches full metadata, including the documents array
	GetDetail(ctx context.Context, externalID string) (*GrantDetail, error)

	// DownloadDocument returns raw PDF bytes. Fails when the Content-Type is
	// not application/pdf or the payload does not start with the %PDF magic.
	DownloadDocument(ctx context.Context, documentID string) ([]byte, error)

	// Iterate produces a lazy, finite, non-restartable item sequence that
	// pages forward server-side, stopping after maxItems when maxItems > 0
	Iterate(ctx context.Context, opts models.SearchOptions, maxItems int) RegistryIterator
}

// RegistryIterator walks a paginated listing one item at a time
type RegistryIterator interface {
	// Next returns the next item, or nil once the sequence is exhausted.
	// A non-nil error ends the sequence.
	Next(ctx context.Context) (*RegistryItem, error)
}
