// -----------------------------------------------------------------------
// Fetch Stage - Registry listing walk, grant upsert, staging creation
// -----------------------------------------------------------------------

package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/convoca/internal/common"
	"github.com/ternarybob/convoca/internal/interfaces"
	"github.com/ternarybob/convoca/internal/models"
	"github.com/ternarybob/convoca/internal/services/extraction"
)

// Ingest walks the registry listing for the given filter, fetches each
// grant's detail, upserts the grant, and creates (or refreshes) its staging
// cursor. Items with no documents are marked skipped at this stage; the rest
// get a pdf task enqueued. Per-item failures are counted, never fatal.
func (c *Coordinator) Ingest(ctx context.Context, opts models.SearchOptions, maxItems int) (*models.IngestResult, error) {
	batchID := common.NewBatchID()
	result := &models.IngestResult{BatchID: batchID}

	c.logger.Info().Str("batch_id", batchID).Int("max_items", maxItems).Msg("Starting registry ingest")
	start := time.Now()

	iter := c.registry.Iterate(ctx, opts, maxItems)
	for {
		item, err := iter.Next(ctx)
		if err != nil {
			if result.Inserted+result.Duplicates == 0 {
				return nil, fmt.Errorf("registry listing failed: %w", err)
			}
			// Partial progress survives; the next ingest run picks up the rest
			c.logger.Warn().Err(err).Str("batch_id", batchID).Msg("Registry listing ended early")
			result.Errors++
			break
		}
		if item == nil {
			break
		}

		if err := c.ingestItem(ctx, item, batchID, result); err != nil {
			c.logger.Warn().Err(err).Str("external_id", item.ExternalID).Msg("Failed to ingest item")
			result.Errors++
		}
	}

	c.logger.Info().
		Str("batch_id", batchID).
		Int("inserted", result.Inserted).
		Int("duplicates", result.Duplicates).
		Int("errors", result.Errors).
		Dur("duration", time.Since(start)).
		Msg("Registry ingest completed")

	return result, nil
}

// ingestItem processes one listing row: detail fetch, grant upsert, staging upsert
func (c *Coordinator) ingestItem(ctx context.Context, item *interfaces.RegistryItem, batchID string, result *models.IngestResult) error {
	if item.ExternalID == "" {
		return fmt.Errorf("listing row has no external ID")
	}

	detail, err := c.registry.GetDetail(ctx, item.ExternalID)
	if err != nil {
		return fmt.Errorf("detail fetch failed: %w", err)
	}

	grant, err := c.storage.GrantStorage().UpsertGrant(buildGrant(detail))
	if err != nil {
		return fmt.Errorf("grant upsert failed: %w", err)
	}

	pdfURL := c.classifyPDFURL(detail)
	staging, inserted, err := c.storage.StagingStorage().UpsertStaging(grant.ExternalID, batchID, pdfURL, grant.ID)
	if err != nil {
		return fmt.Errorf("staging upsert failed: %w", err)
	}

	if inserted {
		result.Inserted++
	} else {
		result.Duplicates++
	}

	// A grant with no documents has nothing for the pdf stage to do
	if len(detail.Documentos) == 0 {
		if _, err := c.storage.StagingStorage().TransitionStatus(staging.ID,
			[]models.StagingStatus{models.StagingPending}, models.StagingSkipped,
			models.StageFetch, "no documents attached"); err != nil {
			return fmt.Errorf("failed to skip documentless item: %w", err)
		}
		return nil
	}

	if staging.Status == models.StagingPending {
		if err := c.publish(QueuePDF, models.StagePDF, models.PDFTask{StagingID: staging.ID}); err != nil {
			return fmt.Errorf("failed to enqueue pdf task: %w", err)
		}
	}

	return nil
}

// classifyPDFURL picks the staging item's pdf_url: the classified PDF
// document's URL when one exists, otherwise a download URL synthesized from
// the first document's ID, otherwise empty.
func (c *Coordinator) classifyPDFURL(detail *interfaces.GrantDetail) string {
	var fallback *interfaces.RegistryDocument
	for i := range detail.Documentos {
		doc := &detail.Documentos[i]
		name := strings.ToLower(doc.Filename)
		if strings.HasSuffix(name, ".pdf") {
			if doc.URL != "" {
				return doc.URL
			}
			return c.documentURL(doc.ID)
		}
		if fallback == nil {
			fallback = doc
		}
	}
	if fallback != nil {
		return c.documentURL(fallback.ID)
	}
	return ""
}

func (c *Coordinator) documentURL(documentID string) string {
	return fmt.Sprintf("%s/convocatorias/documentos?idDocumento=%s", c.config.Registry.BaseURL, documentID)
}

// grantDateLayouts are the date formats seen in registry detail payloads
var grantDateLayouts = []string{"2006-01-02", "02/01/2006"}

// parseGrantDate returns the zero time for absent or malformed dates
func parseGrantDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range grantDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

// buildGrant maps a registry detail payload onto the typed grant model and
// computes the derived normalized fields
func buildGrant(detail *interfaces.GrantDetail) *models.Grant {
	grant := &models.Grant{
		ExternalID:        detail.ExternalID,
		Titulo:            detail.Titulo,
		Descripcion:       detail.DescripcionLarga,
		Organismo:         detail.Organismo,
		NivelAdmin1:       detail.Nivel1,
		NivelAdmin2:       detail.Nivel2,
		NivelAdmin3:       detail.Nivel3,
		Finalidad:         detail.Finalidad,
		Sectores:          detail.Sectores,
		TiposBeneficiario: detail.TiposBeneficiario,
		Regiones:          detail.Regiones,
		Ambito:            detail.Ambito,
		ImporteTotal:      detail.ImporteTotal,
		RawPayload:        detail.Extra,
	}
	if grant.Organismo == "" {
		grant.Organismo = detail.Nivel1
	}

	grant.FechaInicioSolicitud = parseGrantDate(detail.FechaInicio)
	grant.FechaFinSolicitud = parseGrantDate(detail.FechaFin)

	for _, doc := range detail.Documentos {
		grant.Documentos = append(grant.Documentos, models.GrantDocument{
			ID:       doc.ID,
			Filename: doc.Filename,
			URL:      doc.URL,
		})
	}

	grant.SectoresNormalizados = extraction.NormalizeSectors(strings.Join(detail.Sectores, ", "))
	grant.BeneficiariosNormalizados = extraction.NormalizeBeneficiaryTypes(strings.Join(detail.TiposBeneficiario, ", "))
	grant.RegionesNUTS = extraction.RegionsToNUTS(detail.Regiones)

	// The registry's own open flag wins; fall back to the date window
	grant.Abierta = detail.Abierta
	if !grant.Abierta && !grant.FechaFinSolicitud.IsZero() {
		now := time.Now()
		started := grant.FechaInicioSolicitud.IsZero() || !grant.FechaInicioSolicitud.After(now)
		grant.Abierta = started && grant.FechaFinSolicitud.After(now)
	}

	return grant
}
