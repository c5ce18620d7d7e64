package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Maphikza/sip-privacy-wallet/internal/compliance"
	"github.com/Maphikza/sip-privacy-wallet/internal/logger"
	"github.com/Maphikza/sip-privacy-wallet/internal/scanner"
	"github.com/Maphikza/sip-privacy-wallet/internal/vault"
	"github.com/Maphikza/sip-privacy-wallet/lib/address"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

// allowMethods rejects requests whose method is not listed.
func allowMethods(methods ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			for _, m := range methods {
				if r.Method == m {
					next.ServeHTTP(w, r)
					return
				}
			}
			w.Header().Set("Allow", strings.Join(methods, ", "))
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}
}

func (s *Server) HandleMetaAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	meta, err := s.engine.MetaAddress(ctx)
	if err != nil {
		logger.Error("Failed to load meta-address", "error", err)
		http.Error(w, "Failed to load meta-address", http.StatusInternalServerError)
		return
	}

	if chain := r.URL.Query().Get("chain"); chain != "" && chain != meta.Chain {
		meta, err = s.engine.Vault().MetaAddress(ctx, chain)
		if errors.Is(err, address.ErrUnsupportedChain) || errors.Is(err, vault.ErrCurveMismatch) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, "Failed to load meta-address", http.StatusInternalServerError)
			return
		}
	}

	c, err := address.LookupChain(meta.Chain)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, MetaAddressResponse{
		MetaAddress:       meta.String(),
		Chain:             meta.Chain,
		SpendingPublicKey: c.EncodeKey(meta.SpendingPublicKey),
		ViewingPublicKey:  c.EncodeKey(meta.ViewingPublicKey),
	})
}

func (s *Server) HandleScan(w http.ResponseWriter, r *http.Request) {
	out, err := s.engine.ScanNow(r.Context())
	if errors.Is(err, scanner.ErrScanInProgress) {
		http.Error(w, "Scan already in progress", http.StatusConflict)
		return
	}
	if err != nil {
		logger.Error("Scan failed", "error", err)
		http.Error(w, "Scan failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, ScanResponse{
		Found:    out.Found,
		Rejected: len(out.Rejected),
		LastScan: out.LastScan,
	})
}

func (s *Server) HandlePayments(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.ListPayments(r.Context())
	if err != nil {
		http.Error(w, "Failed to load payments", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func parseFilter(r *http.Request) (compliance.Filter, error) {
	q := r.URL.Query()
	f := compliance.Filter{Provider: q.Get("provider")}
	for key, dst := range map[string]*time.Time{"since": &f.Since, "until": &f.Until} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return compliance.Filter{}, err
		}
		*dst = t
	}
	return f, nil
}

// HandleComplianceExport returns the ledger as an encrypted bundle for an
// auditor holding a disclosed viewing key.
func (s *Server) HandleComplianceExport(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		http.Error(w, "Invalid time filter", http.StatusBadRequest)
		return
	}
	bundle, err := s.engine.ExportCompliance(r.Context(), f)
	if err != nil {
		http.Error(w, "Failed to export compliance records", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) HandleDisclosures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method == http.MethodGet {
		list, err := s.engine.Disclosures(ctx)
		if err != nil {
			http.Error(w, "Failed to load disclosures", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, list)
		return
	}

	var req DisclosureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Cannot parse JSON", http.StatusBadRequest)
		return
	}
	if _, err := s.engine.MetaAddress(ctx); err != nil {
		http.Error(w, "Failed to load keys", http.StatusInternalServerError)
		return
	}
	d, viewingKey, err := s.engine.Disclose(ctx, req.RecipientName, req.Purpose, req.ExpiresAt)
	if errors.Is(err, compliance.ErrLedger) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, "Failed to record disclosure", http.StatusInternalServerError)
		return
	}
	logger.Info("Viewing key disclosed", "id", d.ID, "recipient", d.RecipientName)
	writeJSON(w, http.StatusCreated, DisclosureResponse{Disclosure: d, ViewingKey: hex.EncodeToString(viewingKey)})
}

func (s *Server) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/disclosures/")
	id = strings.TrimSuffix(id, "/revoke")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	d, err := s.engine.Revoke(r.Context(), id)
	if errors.Is(err, compliance.ErrDisclosureNotFound) {
		http.Error(w, "Disclosure not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to revoke disclosure", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandlePaylinkParse decodes a payment deep link and classifies its address
// on the engine's chain.
func (s *Server) HandlePaylinkParse(w http.ResponseWriter, r *http.Request) {
	var req PaylinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Cannot parse JSON", http.StatusBadRequest)
		return
	}
	pr, err := address.ParsePaymentRequest(req.Link)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	kind, err := address.Classify(s.engine.ChainName(), pr.Address)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, PaylinkResponse{
		Address: pr.Address,
		Kind:    string(kind),
		Amount:  pr.Amount,
		Token:   pr.Token,
		Memo:    pr.Memo,
	})
}
