package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dairyflow/backend/internal/domain/inventory"
	"github.com/dairyflow/backend/internal/domain/shared"
	"github.com/dairyflow/backend/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SpoilageRegisterRenderer turns spoilage records into a downloadable document
type SpoilageRegisterRenderer interface {
	RenderSpoilageRegister(records []SpoilageRecordResponse, generatedAt time.Time) ([]byte, error)
	ContentType() string
	FileExtension() string
}

// ReportArchive keeps a copy of generated reports. Put returns the location
// of the stored object.
type ReportArchive interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

const exportPageSize = 500

// SpoilageService runs the expiry scan and the spoilage/disposal workflow
type SpoilageService struct {
	ledgerCore
	batchRepo     inventory.BatchRepository
	spoilageRepo  inventory.SpoilageRecordRepository
	detector      *inventory.BypassDetector
	bypassEnabled bool
	bypassWindow  time.Duration
	scanLimit     int
	renderer      SpoilageRegisterRenderer
	archive       ReportArchive
	archivePrefix string
}

// NewSpoilageService creates a new SpoilageService
func NewSpoilageService(
	batchRepo inventory.BatchRepository,
	spoilageRepo inventory.SpoilageRecordRepository,
	txScope TransactionScope,
	logger *zap.Logger,
) *SpoilageService {
	return &SpoilageService{
		ledgerCore:    newLedgerCore(txScope, logger),
		batchRepo:     batchRepo,
		spoilageRepo:  spoilageRepo,
		detector:      inventory.NewBypassDetector(),
		bypassEnabled: true,
		scanLimit:     DefaultScanBatchLimit,
	}
}

// SetBypassDetection turns FIFO bypass detection on or off. window limits how
// far back from the batch's expiry (or the cutoff, if earlier) the consumption
// log is read; zero reads from the batch's receipt.
func (s *SpoilageService) SetBypassDetection(enabled bool, window time.Duration) {
	s.bypassEnabled = enabled
	s.bypassWindow = window
}

// SetScanBatchLimit sets the page size of the expiry scan
func (s *SpoilageService) SetScanBatchLimit(limit int) {
	if limit > 0 {
		s.scanLimit = limit
	}
}

// SetRegisterRenderer sets the renderer used by ExportSpoilageRegister
func (s *SpoilageService) SetRegisterRenderer(renderer SpoilageRegisterRenderer) {
	s.renderer = renderer
}

// SetReportArchive enables archiving of exported registers under prefix
func (s *SpoilageService) SetReportArchive(archive ReportArchive, prefix string) {
	s.archive = archive
	s.archivePrefix = prefix
}

// ScanExpired moves every allocatable batch past its expiry date into
// EXPIRED and logs one EXPIRED spoilage record per batch. Each batch is
// handled in its own transaction; failures are reported per batch and the
// scan goes on. Running it twice for the same date changes nothing.
func (s *SpoilageService) ScanExpired(ctx context.Context, asOf *time.Time) (_ *ScanResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "spoilage", "scan_expired")
	defer func() { telemetry.EndSpan(span, err) }()
	return s.scanExpired(ctx, asOf)
}

func (s *SpoilageService) scanExpired(ctx context.Context, asOf *time.Time) (*ScanResult, error) {
	scanDate := s.asOfDate(asOf)
	result := &ScanResult{
		AsOf:            scanDate,
		ExpiredBatches:  make([]ExpiredBatch, 0),
		SpoilageRecords: make([]SpoilageRecordResponse, 0),
		Failures:        make([]ScanFailure, 0),
	}

	failed := make(map[uuid.UUID]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		page, err := s.batchRepo.FindPastExpiry(ctx, scanDate, s.scanLimit)
		if err != nil {
			return result, err
		}

		progress := 0
		for i := range page {
			candidate := &page[i]
			if _, seen := failed[candidate.ID]; seen {
				continue
			}
			expired, record, err := s.expireBatch(ctx, candidate.ID, scanDate)
			if err != nil {
				failed[candidate.ID] = struct{}{}
				result.Failures = append(result.Failures, scanFailure(candidate, err))
				s.logger.Warn("Failed to expire batch",
					zap.String("batch_id", candidate.ID.String()),
					zap.String("batch_code", candidate.BatchCode),
					zap.Error(err),
				)
				continue
			}
			progress++
			if expired != nil {
				result.ExpiredBatches = append(result.ExpiredBatches, *expired)
			}
			if record != nil {
				result.SpoilageRecords = append(result.SpoilageRecords, ToSpoilageRecordResponse(record))
			}
		}

		if len(page) < s.scanLimit || progress == 0 {
			break
		}
	}

	s.logger.Info("Expiry scan finished",
		zap.Time("as_of", scanDate),
		zap.Int("expired", len(result.ExpiredBatches)),
		zap.Int("spoilage_records", len(result.SpoilageRecords)),
		zap.Int("failures", len(result.Failures)),
	)
	return result, nil
}

// expireBatch expires one batch and makes sure its expiry record exists. A
// batch that another caller already expired only gets the record check.
func (s *SpoilageService) expireBatch(ctx context.Context, batchID uuid.UUID, asOf time.Time) (*ExpiredBatch, *inventory.SpoilageRecord, error) {
	events := &eventCollector{}
	var (
		expired *ExpiredBatch
		record  *inventory.SpoilageRecord
	)
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		events.events = nil
		expired, record = nil, nil
		now := s.now()

		batch, err := repos.Batches().FindByIDForUpdate(ctx, batchID)
		if err != nil {
			return err
		}

		switch {
		case batch.Status == inventory.BatchStatusExpired:
		case batch.Status.IsAllocatable() && batch.IsPastExpiry(asOf) && batch.CurrentQuantity.IsPositive():
			releasedReserved, err := batch.Expire(asOf)
			if err != nil {
				return err
			}
			if err := repos.Batches().Update(ctx, batch); err != nil {
				return err
			}
			closed, err := closeBatchReservations(ctx, repos, batch.ID, now, true)
			if err != nil {
				return err
			}
			if !sumReservations(closed).Equal(releasedReserved) {
				s.logger.Error("Reserved quantity does not match active reservations",
					zap.String("batch_id", batch.ID.String()),
					zap.String("reserved", releasedReserved.String()),
					zap.String("reservations", sumReservations(closed).String()),
				)
			}
			for i := range closed {
				events.add(inventory.NewReservationReleasedEvent(&closed[i]))
			}
			events.drain(batch)
			expired = &ExpiredBatch{
				BatchID:          batch.ID,
				BatchCode:        batch.BatchCode,
				MaterialID:       batch.MaterialID,
				Quantity:         batch.CurrentQuantity,
				ReleasedReserved: releasedReserved,
			}
		default:
			// Consumed or written off since the page was read
			return nil
		}

		_, err = repos.Spoilage().FindExpiryRecord(ctx, batch.ID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, inventory.ErrSpoilageNotFound) {
			return err
		}

		record, err = s.newExpiryRecord(ctx, repos, batch, asOf, now)
		if err != nil {
			return err
		}
		if err := repos.Spoilage().Create(ctx, record); err != nil {
			return err
		}
		events.add(inventory.NewSpoilageRecordedEvent(record))
		if expired != nil {
			expired.FifoBypassed = record.FifoBypassed
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if expired != nil {
		s.logger.Info("Batch expired",
			zap.String("batch_id", expired.BatchID.String()),
			zap.String("batch_code", expired.BatchCode),
			zap.String("quantity", expired.Quantity.String()),
			zap.Bool("fifo_bypassed", expired.FifoBypassed),
		)
	}
	s.publish(ctx, events.events...)
	return expired, record, nil
}

func (s *SpoilageService) newExpiryRecord(ctx context.Context, repos TransactionalRepositories, batch *inventory.Batch, cutoff, now time.Time) (*inventory.SpoilageRecord, error) {
	bypassed, finding, err := s.detectBypass(ctx, repos, batch, cutoff)
	if err != nil {
		return nil, err
	}
	return inventory.NewSpoilageRecord(batch, batch.CurrentQuantity, inventory.SpoilageReasonExpired, bypassed, bypassNote(finding), now)
}

// detectBypass reads the consumption log around batch and asks the detector
// whether a newer batch was picked while this one still had stock
func (s *SpoilageService) detectBypass(ctx context.Context, repos TransactionalRepositories, batch *inventory.Batch, cutoff time.Time) (bool, *inventory.BypassFinding, error) {
	if !s.bypassEnabled {
		return false, nil, nil
	}
	own, err := repos.Consumptions().FindByBatch(ctx, batch.ID)
	if err != nil {
		return false, nil, err
	}
	until := cutoff
	if batch.ExpiryDate != nil && batch.ExpiryDate.Before(until) {
		until = *batch.ExpiryDate
	}
	from := batch.ReceivedDate
	if s.bypassWindow > 0 {
		if windowStart := until.Add(-s.bypassWindow); windowStart.After(from) {
			from = windowStart
		}
	}
	window, err := repos.Consumptions().FindByMaterialWindow(ctx, batch.MaterialID, from, until)
	if err != nil {
		return false, nil, err
	}
	bypassed, finding := s.detector.Detect(batch, own, window, cutoff)
	return bypassed, finding, nil
}

func bypassNote(finding *inventory.BypassFinding) string {
	if finding == nil {
		return ""
	}
	return "FIFO bypassed: batch " + finding.NewerBatchCode + " picked on " +
		finding.ConsumedAt.Format("2006-01-02") + " while " + finding.OlderRemaining.String() + " remained"
}

func scanFailure(batch *inventory.Batch, err error) ScanFailure {
	failure := ScanFailure{
		BatchID:   batch.ID,
		BatchCode: batch.BatchCode,
		Code:      "INTERNAL_ERROR",
		Message:   err.Error(),
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		failure.Code = domainErr.Code
	}
	return failure
}

// RecordSpoilage writes off part of a batch (damage, contamination). Expired
// batches are written off through Dispose.
func (s *SpoilageService) RecordSpoilage(ctx context.Context, req RecordSpoilageRequest) (*SpoilageResult, error) {
	if !req.Quantity.IsPositive() {
		return nil, inventory.ErrInvalidRequest.WithMessage("Spoiled quantity must be positive")
	}
	if req.Reason == "" {
		req.Reason = inventory.SpoilageReasonDamaged
	}
	if !req.Reason.IsValid() {
		return nil, inventory.ErrInvalidRequest.WithMessage("Invalid spoilage reason")
	}
	if req.Reason == inventory.SpoilageReasonExpired {
		return nil, inventory.ErrInvalidRequest.
			WithMessage("Expiry spoilage is recorded by the expiry scan")
	}

	events := &eventCollector{}
	var (
		batch       *inventory.Batch
		record      *inventory.SpoilageRecord
		consumption *inventory.ConsumptionRecord
	)
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		events.events = nil
		now := s.now()

		var err error
		batch, err = repos.Batches().FindByIDForUpdate(ctx, req.BatchID)
		if err != nil {
			return err
		}
		if batch.Status == inventory.BatchStatusExpired {
			return inventory.ErrInvalidTransition.
				WithMessage("Batch " + batch.BatchCode + " has expired, dispose of it instead").
				WithDetail("batch_code", batch.BatchCode)
		}

		bypassed, finding, err := s.detectBypass(ctx, repos, batch, now)
		if err != nil {
			return err
		}
		if err := batch.Spoil(req.Quantity); err != nil {
			return err
		}
		if err := repos.Batches().Update(ctx, batch); err != nil {
			return err
		}

		notes := req.Notes
		if note := bypassNote(finding); note != "" {
			notes = strings.TrimSpace(notes + "\n" + note)
		}
		record, err = inventory.NewSpoilageRecord(batch, req.Quantity, req.Reason, bypassed, notes, now)
		if err != nil {
			return err
		}
		if err := repos.Spoilage().Create(ctx, record); err != nil {
			return err
		}

		consumption = spoilageConsumption(batch, record, req.Quantity, req.ActorRef, now)
		if err := repos.Consumptions().Append(ctx, consumption); err != nil {
			return err
		}
		if err := repos.Materials().AdjustOnHand(ctx, batch.MaterialID, req.Quantity.Neg()); err != nil {
			return err
		}

		events.add(inventory.NewSpoilageRecordedEvent(record))
		if batch.Status == inventory.BatchStatusDisposed {
			events.add(inventory.NewBatchDisposedEvent(batch, req.Quantity, req.Reason))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Spoilage recorded",
		zap.String("spoilage_id", record.ID.String()),
		zap.String("batch_code", batch.BatchCode),
		zap.String("quantity", record.QuantitySpoiled.String()),
		zap.String("total_loss", record.TotalLoss.String()),
		zap.String("reason", string(record.Reason)),
	)
	s.publish(ctx, events.events...)

	consumptionResponse := ToConsumptionRecordResponse(consumption)
	return &SpoilageResult{
		Spoilage:    ToSpoilageRecordResponse(record),
		Batch:       ToBatchResponse(batch),
		Consumption: &consumptionResponse,
	}, nil
}

// ApproveSpoilage approves a pending record. A manual record is written off in
// the same step since its quantity already left the batch; an expiry record
// stays APPROVED until the batch is disposed.
func (s *SpoilageService) ApproveSpoilage(ctx context.Context, spoilageID uuid.UUID) (*SpoilageRecordResponse, error) {
	var record *inventory.SpoilageRecord
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		now := s.now()
		var err error
		record, err = repos.Spoilage().FindByID(ctx, spoilageID)
		if err != nil {
			return err
		}
		if err := record.Approve(now); err != nil {
			return err
		}
		if !record.IsExpiryRecord() {
			if err := record.WriteOff(now); err != nil {
				return err
			}
		}
		return repos.Spoilage().Update(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Spoilage approved",
		zap.String("spoilage_id", record.ID.String()),
		zap.String("batch_code", record.BatchCode),
		zap.String("status", string(record.Status)),
	)
	response := ToSpoilageRecordResponse(record)
	return &response, nil
}

// Dispose writes off everything left in a batch. An expired batch reuses the
// record created by the expiry scan (or gets one now); any other batch gets a
// fresh record. Every open record of the batch ends WRITTEN_OFF.
func (s *SpoilageService) Dispose(ctx context.Context, req DisposeRequest) (_ *SpoilageResult, err error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "spoilage", "dispose", telemetry.AttrBatchID.String(req.BatchID.String()))
	defer func() { telemetry.EndSpan(span, err) }()
	return s.dispose(ctx, req)
}

func (s *SpoilageService) dispose(ctx context.Context, req DisposeRequest) (*SpoilageResult, error) {
	if req.Reason != "" && !req.Reason.IsValid() {
		return nil, inventory.ErrInvalidRequest.WithMessage("Invalid spoilage reason")
	}

	events := &eventCollector{}
	var (
		batch       *inventory.Batch
		record      *inventory.SpoilageRecord
		consumption *inventory.ConsumptionRecord
	)
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		events.events = nil
		consumption = nil
		now := s.now()

		var err error
		batch, err = repos.Batches().FindByIDForUpdate(ctx, req.BatchID)
		if err != nil {
			return err
		}

		if batch.Status == inventory.BatchStatusExpired {
			record, err = repos.Spoilage().FindExpiryRecord(ctx, batch.ID)
			if errors.Is(err, inventory.ErrSpoilageNotFound) {
				record, err = s.newExpiryRecord(ctx, repos, batch, now, now)
				if err != nil {
					return err
				}
				if err := repos.Spoilage().Create(ctx, record); err != nil {
					return err
				}
				events.add(inventory.NewSpoilageRecordedEvent(record))
			} else if err != nil {
				return err
			}
		} else {
			reason := req.Reason
			if reason == "" {
				reason = inventory.SpoilageReasonOther
			}
			if reason == inventory.SpoilageReasonExpired {
				return inventory.ErrInvalidRequest.
					WithMessage("Batch " + batch.BatchCode + " has not been expired by the scan").
					WithDetail("batch_code", batch.BatchCode)
			}
			if !batch.Status.IsAllocatable() {
				return inventory.ErrInvalidTransition.
					WithMessage("Batch "+batch.BatchCode+" is "+batch.Status.String()+" and cannot be disposed").
					WithDetail("batch_code", batch.BatchCode).
					WithDetail("status", batch.Status.String())
			}
			bypassed, finding, err := s.detectBypass(ctx, repos, batch, now)
			if err != nil {
				return err
			}
			notes := req.Notes
			if note := bypassNote(finding); note != "" {
				notes = strings.TrimSpace(notes + "\n" + note)
			}
			record, err = inventory.NewSpoilageRecord(batch, batch.CurrentQuantity, reason, bypassed, notes, now)
			if err != nil {
				return err
			}
			if err := repos.Spoilage().Create(ctx, record); err != nil {
				return err
			}
			events.add(inventory.NewSpoilageRecordedEvent(record))
		}

		disposed, releasedReserved, err := batch.Dispose()
		if err != nil {
			return err
		}
		if err := repos.Batches().Update(ctx, batch); err != nil {
			return err
		}
		if releasedReserved.IsPositive() {
			closed, err := closeBatchReservations(ctx, repos, batch.ID, now, false)
			if err != nil {
				return err
			}
			for i := range closed {
				events.add(inventory.NewReservationReleasedEvent(&closed[i]))
			}
		}

		if disposed.IsPositive() {
			consumption = spoilageConsumption(batch, record, disposed, req.ActorRef, now)
			if err := repos.Consumptions().Append(ctx, consumption); err != nil {
				return err
			}
			if err := repos.Materials().AdjustOnHand(ctx, batch.MaterialID, disposed.Neg()); err != nil {
				return err
			}
		}

		open, err := repos.Spoilage().FindOpenByBatch(ctx, batch.ID)
		if err != nil {
			return err
		}
		for i := range open {
			if err := open[i].WriteOff(now); err != nil {
				return err
			}
			if err := repos.Spoilage().Update(ctx, &open[i]); err != nil {
				return err
			}
			if open[i].ID == record.ID {
				record = &open[i]
			}
		}

		events.add(inventory.NewBatchDisposedEvent(batch, disposed, record.Reason))
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Batch disposed",
		zap.String("batch_id", batch.ID.String()),
		zap.String("batch_code", batch.BatchCode),
		zap.String("spoilage_id", record.ID.String()),
		zap.String("reason", string(record.Reason)),
		zap.String("actor_ref", req.ActorRef),
	)
	s.publish(ctx, events.events...)

	result := &SpoilageResult{
		Spoilage: ToSpoilageRecordResponse(record),
		Batch:    ToBatchResponse(batch),
	}
	if consumption != nil {
		response := ToConsumptionRecordResponse(consumption)
		result.Consumption = &response
	}
	return result, nil
}

// spoilageConsumption is the log line of a write-off; its context is the
// spoilage record
func spoilageConsumption(batch *inventory.Batch, record *inventory.SpoilageRecord, quantity decimal.Decimal, actorRef string, at time.Time) *inventory.ConsumptionRecord {
	return inventory.NewConsumptionRecord(batch, quantity, inventory.ConsumptionContext{
		Reason:     inventory.ConsumptionReasonSpoilage,
		ContextRef: record.ID.String(),
		ActorRef:   actorRef,
		Metadata:   map[string]string{"spoilage_reason": string(record.Reason)},
	}, nil, at)
}

// ListSpoilage returns a page of the spoilage register
func (s *SpoilageService) ListSpoilage(ctx context.Context, filter SpoilageListFilter) (shared.Paginated[SpoilageRecordResponse], error) {
	domainFilter := spoilageFilter(filter)
	records, total, err := s.spoilageRepo.List(ctx, domainFilter)
	if err != nil {
		return shared.Paginated[SpoilageRecordResponse]{}, err
	}
	return shared.NewPaginated(ToSpoilageRecordResponses(records), total, domainFilter.Page, domainFilter.PageSize), nil
}

func spoilageFilter(filter SpoilageListFilter) shared.Filter {
	domainFilter := shared.Filter{
		Page:     filter.Page,
		PageSize: filter.PageSize,
		Search:   filter.Search,
		OrderBy:  filter.OrderBy,
		OrderDir: filter.OrderDir,
		Filters:  make(map[string]any),
	}
	if domainFilter.Page <= 0 {
		domainFilter.Page = 1
	}
	if domainFilter.PageSize <= 0 {
		domainFilter.PageSize = 20
	}
	if filter.MaterialID != nil {
		domainFilter.Filters["material_id"] = *filter.MaterialID
	}
	if filter.BatchID != nil {
		domainFilter.Filters["batch_id"] = *filter.BatchID
	}
	if filter.Status != "" {
		domainFilter.Filters["status"] = strings.ToUpper(filter.Status)
	}
	if filter.Reason != "" {
		domainFilter.Filters["reason"] = strings.ToUpper(filter.Reason)
	}
	if filter.FifoBypassed != nil {
		domainFilter.Filters["fifo_bypassed"] = *filter.FifoBypassed
	}
	if filter.DetectedFrom != nil {
		domainFilter.Filters["detected_from"] = *filter.DetectedFrom
	}
	if filter.DetectedTo != nil {
		domainFilter.Filters["detected_to"] = *filter.DetectedTo
	}
	return domainFilter
}

// ExportSpoilageRegister renders every record matching filter and archives
// the document when an archive is configured. Archive failures are logged;
// the document is still returned.
func (s *SpoilageService) ExportSpoilageRegister(ctx context.Context, filter SpoilageListFilter) (*SpoilageRegisterExport, error) {
	if s.renderer == nil {
		return nil, shared.ErrInvalidState.WithMessage("Spoilage register export is not configured")
	}

	filter.PageSize = exportPageSize
	rows := make([]SpoilageRecordResponse, 0)
	for page := 1; ; page++ {
		filter.Page = page
		domainFilter := spoilageFilter(filter)
		records, total, err := s.spoilageRepo.List(ctx, domainFilter)
		if err != nil {
			return nil, err
		}
		rows = append(rows, ToSpoilageRecordResponses(records)...)
		if len(records) < exportPageSize || int64(len(rows)) >= total {
			break
		}
	}

	generatedAt := s.now()
	content, err := s.renderer.RenderSpoilageRegister(rows, generatedAt)
	if err != nil {
		return nil, err
	}

	export := &SpoilageRegisterExport{
		FileName:    "spoilage-register-" + generatedAt.Format("20060102-150405") + s.renderer.FileExtension(),
		ContentType: s.renderer.ContentType(),
		Content:     content,
		Rows:        len(rows),
	}
	if s.archive != nil {
		location, err := s.archive.Put(ctx, s.archivePrefix+export.FileName, content, export.ContentType)
		if err != nil {
			s.logger.Warn("Failed to archive spoilage register",
				zap.String("file_name", export.FileName),
				zap.Error(err),
			)
		} else {
			export.Location = location
		}
	}

	s.logger.Info("Spoilage register exported",
		zap.String("file_name", export.FileName),
		zap.Int("rows", export.Rows),
		zap.String("location", export.Location),
	)
	return export, nil
}
