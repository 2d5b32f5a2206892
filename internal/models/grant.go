package models

import (
	"encoding/json"
	"time"
)

// GrantDocument is one document attached to a grant in the source registry
type GrantDocument struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// Grant holds the structured metadata fetched from the source registry.
// Field names follow the registry's own (Spanish) vocabulary where the
// concept has no clean English equivalent; the raw API payload is kept
// verbatim in RawPayload.
type Grant struct {
	ID         string `json:"id" badgerhold:"key"`
	ExternalID string `json:"external_id" badgerhold:"unique"` // numeroConvocatoria in the source

	Titulo      string `json:"titulo"`
	Descripcion string `json:"descripcion,omitempty"`
	Organismo   string `json:"organismo" badgerhold:"index"`

	// Administrative hierarchy, three nesting levels (e.g. state > ministry > directorate)
	NivelAdmin1 string `json:"nivel_admin1,omitempty"`
	NivelAdmin2 string `json:"nivel_admin2,omitempty"`
	NivelAdmin3 string `json:"nivel_admin3,omitempty"`

	// Classification codes from the registry
	Finalidad         string   `json:"finalidad,omitempty"` // purpose code
	Sectores          []string `json:"sectores,omitempty"`
	TiposBeneficiario []string `json:"tipos_beneficiario,omitempty"`
	Regiones          []string `json:"regiones,omitempty"`
	Ambito            string   `json:"ambito,omitempty"` // scope

	// Zero value means the registry published no date
	FechaInicioSolicitud time.Time `json:"fecha_inicio_solicitud"`
	FechaFinSolicitud    time.Time `json:"fecha_fin_solicitud" badgerhold:"index"`

	ImporteTotal  float64 `json:"importe_total,omitempty"`
	ImporteMinimo float64 `json:"importe_minimo,omitempty"`
	ImporteMaximo float64 `json:"importe_maximo,omitempty"`

	Documentos []GrantDocument `json:"documentos,omitempty"`

	// Primary-PDF pointer: the document the pipeline treats as authoritative
	PDFURL  string `json:"pdf_url,omitempty"`
	PDFID   string `json:"pdf_id,omitempty"`
	PDFHash string `json:"pdf_hash,omitempty"`
	HasPDF  bool   `json:"has_pdf"`

	// Derived fields, stored explicitly so filtered queries never recompute
	SectoresNormalizados     []string `json:"sectores_normalizados,omitempty"`
	BeneficiariosNormalizados []string `json:"beneficiarios_normalizados,omitempty"`
	RegionesNUTS             []string `json:"regiones_nuts,omitempty"`
	Abierta                  bool     `json:"abierta"` // application window currently open

	// Verbatim API payload for fields the typed model does not carry
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
