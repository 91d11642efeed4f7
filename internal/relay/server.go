package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"gopkg.in/op/go-logging.v1"

	"omemo/internal/domain"
)

// maxBodySize bounds uploaded documents; a bundle of a few hundred
// pre-keys stays well below it.
const maxBodySize = 1 << 20

type server struct {
	ps  *Memory
	log *logging.Logger
}

// Handler serves ps over HTTP for the HTTP client.
func Handler(ps *Memory, log *logging.Logger) http.Handler {
	s := &server{ps: ps, log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /devices/{address}", s.getDevices)
	mux.HandleFunc("PUT /devices/{address}", s.putDevices)
	mux.HandleFunc("GET /bundles/{address}/{device}", s.getBundle)
	mux.HandleFunc("PUT /bundles/{address}/{device}", s.putBundle)
	return mux
}

func (s *server) getDevices(w http.ResponseWriter, r *http.Request) {
	address := domain.Address(r.PathValue("address"))
	ids, version, err := s.ps.FetchDeviceList(r.Context(), address)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if version == "" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, deviceListDoc{Devices: ids, Version: version})
}

func (s *server) putDevices(w http.ResponseWriter, r *http.Request) {
	address := domain.Address(r.PathValue("address"))
	var doc deviceListDoc
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&doc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.ps.PublishDeviceList(r.Context(), address, doc.Devices); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Debugf("Device list of %s now %v", address, doc.Devices)
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) getBundle(w http.ResponseWriter, r *http.Request) {
	device, ok := deviceFromPath(w, r)
	if !ok {
		return
	}
	b, err := s.ps.FetchBundle(r.Context(), device)
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, b)
}

func (s *server) putBundle(w http.ResponseWriter, r *http.Request) {
	device, ok := deviceFromPath(w, r)
	if !ok {
		return
	}
	var b domain.Bundle
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&b); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.ps.PublishBundle(r.Context(), device, b); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.log.Debugf("Received bundle for %s with %d pre-keys", device, len(b.PreKeys))
	w.WriteHeader(http.StatusNoContent)
}

func deviceFromPath(w http.ResponseWriter, r *http.Request) (domain.Device, bool) {
	id, err := strconv.ParseUint(r.PathValue("device"), 10, 32)
	if err != nil {
		http.Error(w, "bad device id", http.StatusBadRequest)
		return domain.Device{}, false
	}
	return domain.Device{Address: domain.Address(r.PathValue("address")), ID: domain.DeviceID(id)}, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
