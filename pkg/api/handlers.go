package api

import (
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/neurascale/neural-engine/pkg/datastorage/validation"
	"github.com/neurascale/neural-engine/pkg/device"
	"github.com/neurascale/neural-engine/pkg/discovery"
	"github.com/neurascale/neural-engine/pkg/features"
	"github.com/neurascale/neural-engine/pkg/ingestion"
	"github.com/neurascale/neural-engine/pkg/sample"
)

// lockdownCheck returns a problem to write (and short-circuit the
// request on) when the ledger has entered chain-integrity lockdown
// (spec.md §6: "503 when the service is in chain-integrity lockdown"),
// or nil otherwise.
func (s *Server) lockdownCheck() *validation.RFC7807Problem {
	if s.Ledger == nil || !s.Ledger.AnyShardLocked() {
		return nil
	}
	return validation.NewServiceUnavailableProblem("neural ledger is in chain-integrity lockdown")
}

// handleIngestNeuralData implements POST /v1/ingest/neural-data
// (spec.md §6): decode the base64 wire-format chunk, run it through the
// Ingestion Service's validate/score/enqueue path, and acknowledge.
//
// Ingest enqueues asynchronously; the actual data_ingested ledger event
// is written later by Service.Run's dispatch loop, so this response
// cannot report a real ledger_event_id synchronously. LedgerEventID is
// left empty here — callers wanting the written event look it up via
// ledger verify/dump once dispatch has run.
func (s *Server) handleIngestNeuralData(w http.ResponseWriter, r *http.Request) {
	if problem := s.lockdownCheck(); problem != nil {
		writeProblem(w, problem)
		return
	}
	if s.Ingestion == nil || s.Codec == nil {
		writeProblem(w, validation.NewServiceUnavailableProblem("ingestion service not configured"))
		return
	}

	var req IngestNeuralDataRequest
	if problem := decodeAndValidate(r, &req); problem != nil {
		writeProblem(w, problem)
		return
	}

	raw, err := base64.StdEncoding.DecodeString(req.Signals)
	if err != nil {
		writeProblem(w, validation.NewValidationErrorProblem("signals", map[string]string{"signals": "not valid base64"}))
		return
	}

	chunk, err := s.Codec.Decode(raw)
	if err != nil {
		if errors.Is(err, sample.ErrChecksum) {
			writeProblem(w, validation.NewValidationErrorProblem("signals", map[string]string{"signals": "checksum mismatch"}))
			return
		}
		writeProblem(w, validation.NewValidationErrorProblem("signals", map[string]string{"signals": err.Error()}))
		return
	}

	quality := ingestion.ScoreChunk(chunk, s.Weights)

	if err := s.Ingestion.Ingest(r.Context(), req.SessionID, chunk); err != nil {
		if errors.Is(err, ingestion.ErrBusy) {
			writeProblem(w, validation.NewRateLimitedProblem("ingestion buffer over high watermark"))
			return
		}
		writeProblem(w, validation.NewValidationErrorProblem("signals", map[string]string{"chunk": err.Error()}))
		return
	}

	writeJSON(w, http.StatusOK, IngestNeuralDataResponse{
		SessionID:        req.SessionID,
		SamplesProcessed: chunk.NumSamples(),
		Quality:          quality.Overall,
		LedgerEventID:    "",
	})
}

// handleBatchUpload implements POST /v1/ingest/batch-upload (spec.md
// §6): replay a previously-uploaded batch object through the ingestion
// pipeline. The replay runs within the request; Accepted (202) is
// written once it has finished.
func (s *Server) handleBatchUpload(w http.ResponseWriter, r *http.Request) {
	if problem := s.lockdownCheck(); problem != nil {
		writeProblem(w, problem)
		return
	}
	if s.BatchUploader == nil {
		writeProblem(w, validation.NewServiceUnavailableProblem("batch uploader not configured"))
		return
	}

	var req struct {
		SessionID string `json:"session_id" validate:"required"`
		ObjectKey string `json:"object_key" validate:"required"`
	}
	if problem := decodeAndValidate(r, &req); problem != nil {
		writeProblem(w, problem)
		return
	}

	if err := s.BatchUploader.Upload(r.Context(), req.SessionID, req.ObjectKey); err != nil {
		writeProblem(w, validation.NewInternalErrorProblem(err.Error()))
		return
	}

	writeJSON(w, http.StatusAccepted, BatchUploadResponse{
		BatchID:       req.ObjectKey,
		LedgerEventID: "",
	})
}

// handleGetSession implements GET /v1/sessions/{sessionID}. The Device
// Manager only tracks one active session at a time (spec.md §4.4), so a
// request for any id other than the current session's 404s.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if s.DeviceManager == nil {
		writeProblem(w, validation.NewServiceUnavailableProblem("device manager not configured"))
		return
	}
	sessionID := chi.URLParam(r, "sessionID")

	session, ok := s.DeviceManager.CurrentSession()
	if !ok || session.ID != sessionID {
		writeProblem(w, validation.NewNotFoundProblem("session", sessionID))
		return
	}

	writeJSON(w, http.StatusOK, SessionResponse{
		SessionID: session.ID,
		Status:    string(session.Status),
		Metadata:  session.Metadata,
		StartedAt: session.StartedAt,
		EndedAt:   session.EndedAt,
	})
}

// handleSessionStart implements POST /v1/session/start (spec.md §6).
func (s *Server) handleSessionStart(w http.ResponseWriter, r *http.Request) {
	if problem := s.lockdownCheck(); problem != nil {
		writeProblem(w, problem)
		return
	}
	if s.DeviceManager == nil {
		writeProblem(w, validation.NewServiceUnavailableProblem("device manager not configured"))
		return
	}

	var req SessionStartRequest
	if problem := decodeAndValidate(r, &req); problem != nil {
		writeProblem(w, problem)
		return
	}

	metadata := map[string]string{}
	if req.Paradigm != "" {
		metadata["paradigm"] = req.Paradigm
	}
	if req.UserID != "" {
		metadata["user_id"] = req.UserID
	}

	sessionID, err := s.DeviceManager.StartSession(r.Context(), metadata)
	if err != nil {
		writeProblem(w, validation.NewInternalErrorProblem(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, SessionStartResponse{SessionID: sessionID})
}

// handleSessionEnd implements POST /v1/session/end (spec.md §6).
func (s *Server) handleSessionEnd(w http.ResponseWriter, r *http.Request) {
	if s.DeviceManager == nil {
		writeProblem(w, validation.NewServiceUnavailableProblem("device manager not configured"))
		return
	}

	var req SessionEndRequest
	if problem := decodeAndValidate(r, &req); problem != nil {
		writeProblem(w, problem)
		return
	}

	if err := s.DeviceManager.EndSession(r.Context(), req.SessionID); err != nil {
		writeProblem(w, validation.NewInternalErrorProblem(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, struct {
		SessionID string `json:"session_id"`
	}{SessionID: req.SessionID})
}

// handleListDevices implements GET /v1/devices.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	if s.DeviceManager == nil {
		writeProblem(w, validation.NewServiceUnavailableProblem("device manager not configured"))
		return
	}

	ids := s.DeviceManager.Devices()
	out := make([]DeviceResponse, 0, len(ids))
	for _, id := range ids {
		md, ok := s.DeviceManager.Device(id)
		if !ok {
			continue
		}
		out = append(out, DeviceResponse{
			DeviceID:   md.DeviceID,
			DeviceType: md.DeviceType,
			State:      string(md.FSM.State()),
		})
	}

	writeJSON(w, http.StatusOK, out)
}

// handleCreateDevice implements POST /v1/devices (spec.md §6): register
// a managed device from a prior discovery scan's result.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	if s.DeviceManager == nil || s.DriverFactory == nil {
		writeProblem(w, validation.NewServiceUnavailableProblem("device manager not configured"))
		return
	}

	var req DeviceCreateRequest
	if problem := decodeAndValidate(r, &req); problem != nil {
		writeProblem(w, problem)
		return
	}

	deviceID, err := s.DeviceManager.CreateFromDiscovery(r.Context(), req.DiscoveryID, s.DriverFactory)
	if err != nil {
		writeProblem(w, validation.NewValidationErrorProblem("discovery_id", map[string]string{"discovery_id": err.Error()}))
		return
	}

	md, _ := s.DeviceManager.Device(deviceID)
	writeJSON(w, http.StatusOK, DeviceResponse{
		DeviceID:   md.DeviceID,
		DeviceType: md.DeviceType,
		State:      string(md.FSM.State()),
	})
}

// handleConnectDevice implements POST /v1/devices/{id}/connect. spec.md
// §6 names no request body for this endpoint, so connect parameters are
// left at their zero value; devices needing endpoint overrides connect
// via their driver's own configuration instead.
func (s *Server) handleConnectDevice(w http.ResponseWriter, r *http.Request) {
	if s.DeviceManager == nil {
		writeProblem(w, validation.NewServiceUnavailableProblem("device manager not configured"))
		return
	}
	deviceID := chi.URLParam(r, "deviceID")

	if err := s.DeviceManager.Connect(r.Context(), deviceID, device.ConnectParams{}); err != nil {
		writeProblem(w, validation.NewValidationErrorProblem("device_id", map[string]string{"device_id": err.Error()}))
		return
	}

	md, _ := s.DeviceManager.Device(deviceID)
	writeJSON(w, http.StatusOK, StateResponse{DeviceID: deviceID, State: string(md.FSM.State())})
}

// handleStreamStart implements POST /v1/devices/{id}/stream/start.
func (s *Server) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	if problem := s.lockdownCheck(); problem != nil {
		writeProblem(w, problem)
		return
	}
	if s.DeviceManager == nil {
		writeProblem(w, validation.NewServiceUnavailableProblem("device manager not configured"))
		return
	}
	deviceID := chi.URLParam(r, "deviceID")

	var req StreamStartRequest
	if problem := decodeAndValidate(r, &req); problem != nil {
		writeProblem(w, problem)
		return
	}

	if err := s.DeviceManager.StartStreaming(r.Context(), deviceID, req.SessionID); err != nil {
		writeProblem(w, validation.NewValidationErrorProblem("device_id", map[string]string{"device_id": err.Error()}))
		return
	}

	md, _ := s.DeviceManager.Device(deviceID)
	writeJSON(w, http.StatusOK, StateResponse{DeviceID: deviceID, State: string(md.FSM.State())})
}

// handleImpedance implements GET /v1/devices/{id}/impedance.
func (s *Server) handleImpedance(w http.ResponseWriter, r *http.Request) {
	if s.DeviceManager == nil {
		writeProblem(w, validation.NewServiceUnavailableProblem("device manager not configured"))
		return
	}
	deviceID := chi.URLParam(r, "deviceID")

	result, err := s.DeviceManager.CheckImpedance(r.Context(), deviceID)
	if err != nil {
		writeProblem(w, validation.NewNotFoundProblem("device", deviceID))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleSignalQuality implements GET /v1/devices/{id}/signal-quality.
func (s *Server) handleSignalQuality(w http.ResponseWriter, r *http.Request) {
	if s.DeviceManager == nil {
		writeProblem(w, validation.NewServiceUnavailableProblem("device manager not configured"))
		return
	}
	deviceID := chi.URLParam(r, "deviceID")

	report, err := s.DeviceManager.GetSignalQuality(r.Context(), deviceID)
	if err != nil {
		writeProblem(w, validation.NewNotFoundProblem("device", deviceID))
		return
	}

	writeJSON(w, http.StatusOK, qualityReportResponse(report))
}

// handleDevicesHealth implements GET /v1/devices/health: every
// registered device's last-probed health snapshot.
func (s *Server) handleDevicesHealth(w http.ResponseWriter, r *http.Request) {
	if s.DeviceManager == nil {
		writeProblem(w, validation.NewServiceUnavailableProblem("device manager not configured"))
		return
	}

	ids := s.DeviceManager.Devices()
	out := make([]HealthSnapshotResponse, 0, len(ids))
	for _, id := range ids {
		md, ok := s.DeviceManager.Device(id)
		if !ok {
			continue
		}
		out = append(out, HealthSnapshotResponse{
			DeviceID:            md.DeviceID,
			State:               string(md.FSM.State()),
			ConsecutiveDegraded: md.ConsecutiveDegraded,
			LastQualityOverall:  md.LastQuality.Overall,
			LastCheckedAtNs:     md.LastCheckedAtNs,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

// handleHealthAlerts implements GET /v1/devices/health/alerts: the
// buffered history of recent HealthAlerts (spec.md §4.4), since the
// Device Manager itself only fans alerts out live.
func (s *Server) handleHealthAlerts(w http.ResponseWriter, r *http.Request) {
	if s.Alerts == nil {
		writeJSON(w, http.StatusOK, []HealthAlertResponse{})
		return
	}

	alerts := s.Alerts.Snapshot()
	out := make([]HealthAlertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, HealthAlertResponse{
			DeviceID:             a.DeviceID,
			State:                string(a.State),
			ConsecutiveIntervals: a.ConsecutiveIntervals,
			AtTsNs:               a.AtTsNs,
		})
	}

	writeJSON(w, http.StatusOK, out)
}

// handleDiscover implements GET /v1/devices/discover?timeout=Ns
// (spec.md §6).
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	if s.Scanner == nil {
		writeProblem(w, validation.NewServiceUnavailableProblem("discovery scanner not configured"))
		return
	}

	timeout := parseTimeoutQuery(r, discoveryDefaultTimeout)
	result := s.Scanner.Scan(r.Context(), timeout)
	if s.DeviceManager != nil {
		s.DeviceManager.SetDiscovered(result.Devices)
	}

	out := make([]DiscoveredDeviceResponse, 0, len(result.Devices))
	for _, d := range result.Devices {
		out = append(out, discoveredDeviceResponse(d))
	}

	writeJSON(w, http.StatusOK, out)
}

// handleLedgerVerify implements GET /v1/ledger/verify?from=&to=
// (spec.md §6): OK, or the first violation found across every shard.
func (s *Server) handleLedgerVerify(w http.ResponseWriter, r *http.Request) {
	if s.Ledger == nil {
		writeProblem(w, validation.NewServiceUnavailableProblem("ledger not configured"))
		return
	}

	from, to, problem := parseSeqRangeQuery(r)
	if problem != nil {
		writeProblem(w, problem)
		return
	}

	violation, err := s.Ledger.VerifyAll(r.Context(), from, to)
	if err != nil {
		writeProblem(w, validation.NewInternalErrorProblem(err.Error()))
		return
	}
	if violation != nil {
		writeProblem(w, validation.NewIntegrityViolationProblem(violation.FirstBadSeq, violation.Reason))
		return
	}

	writeJSON(w, http.StatusOK, LedgerVerifyResponse{Status: "ok"})
}

func (s *Server) handleLedgerDump(w http.ResponseWriter, r *http.Request) {
	if s.Ledger == nil {
		writeProblem(w, validation.NewServiceUnavailableProblem("ledger not configured"))
		return
	}

	from, to, problem := parseSeqRangeQuery(r)
	if problem != nil {
		writeProblem(w, problem)
		return
	}

	events, err := s.Ledger.Dump(r.Context(), from, to)
	if err != nil {
		writeProblem(w, validation.NewInternalErrorProblem(err.Error()))
		return
	}

	resp := LedgerDumpResponse{Events: make([]LedgerEventResponse, 0, len(events))}
	for _, ev := range events {
		resp.Events = append(resp.Events, LedgerEventResponse{
			EventID:      ev.EventID.String(),
			TsNs:         ev.TsNs,
			EventType:    string(ev.EventType),
			SessionID:    ev.SessionID,
			DeviceID:     ev.DeviceID,
			UserIDAnon:   ev.UserIDAnon,
			Metadata:     ev.Metadata,
			Seq:          ev.Seq,
			Shard:        ev.Shard,
			SigningKeyID: ev.SigningKeyID,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func qualityReportResponse(report features.QualityReport) QualityReportResponse {
	channels := make([]ChannelQualityResponse, 0, len(report.Channels))
	for _, c := range report.Channels {
		artifacts := make([]string, 0, len(c.Artifacts))
		for _, a := range c.Artifacts {
			artifacts = append(artifacts, string(a))
		}
		channels = append(channels, ChannelQualityResponse{
			ChannelID:     c.ChannelID,
			SNRdB:         c.SNRdB,
			LineNoise50Hz: c.LineNoise50Hz,
			LineNoise60Hz: c.LineNoise60Hz,
			Artifacts:     artifacts,
			Overall:       c.Overall,
			Level:         string(c.Level),
		})
	}
	return QualityReportResponse{Overall: report.Overall, Channels: channels}
}

func discoveredDeviceResponse(d discovery.Device) DiscoveredDeviceResponse {
	return DiscoveredDeviceResponse{
		DiscoveryID:  d.DiscoveryID,
		DeviceType:   d.DeviceType,
		Protocol:     string(d.Protocol),
		Endpoint:     d.Endpoint,
		RSSI:         d.RSSI,
		FriendlyName: d.FriendlyName,
	}
}

