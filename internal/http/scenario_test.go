package httpapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	certhandler "certhub/internal/certificate/handler"
	insthandler "certhub/internal/institution/handler"
	id "certhub/pkg/domain"
	"certhub/pkg/testutil"
)

func TestCertificateLifecycleScenario(t *testing.T) {
	s := newStack(t, nil)
	admin := func(t *testing.T, req *http.Request) *http.Request { return s.bearer(t, req, id.RoleAdmin) }

	testutil.Given(t, "an active institution", func(t *testing.T) {
		rr := testutil.DoRequest(s.router, admin(t, testutil.NewJSONRequest(t, http.MethodPost, "/api/institutions",
			map[string]any{"name": "Northwind University", "type": "university"})))
		testutil.AssertStatus(t, rr, http.StatusCreated)
		inst := testutil.UnmarshalResponse[insthandler.InstitutionResponse](t, rr)

		var cert *certhandler.CertificateResponse
		testutil.When(t, "an admin issues a certificate", func(t *testing.T) {
			rr := testutil.DoRequest(s.router, admin(t, testutil.NewJSONRequest(t, http.MethodPost, "/api/certificates",
				map[string]any{
					"institution_id":  inst.ID,
					"title":           "MSc Chemistry",
					"recipient_name":  "Irène Joliot-Curie",
					"recipient_email": "irene@example.com",
				})))
			testutil.AssertStatus(t, rr, http.StatusCreated)
			cert = testutil.UnmarshalResponse[certhandler.CertificateResponse](t, rr)

			testutil.Then(t, "anyone can verify it", func(t *testing.T) {
				rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodGet, "/en/verify/"+cert.VerificationID))
				testutil.AssertStatusOK(t, rr)
				res := testutil.UnmarshalResponse[certhandler.VerificationResponse](t, rr)
				assert.True(t, res.Valid)
				require.NotNil(t, res.Certificate)
				assert.Equal(t, "Northwind University", res.Certificate.InstitutionName)
			})
		})

		testutil.When(t, "the certificate is revoked", func(t *testing.T) {
			require.NotNil(t, cert)
			rr := testutil.DoRequest(s.router, admin(t, testutil.NewJSONRequest(t, http.MethodPost,
				"/api/certificates/"+cert.ID+"/revoke", map[string]any{"reason": "issued in error"})))
			testutil.AssertStatusOK(t, rr)

			testutil.Then(t, "verification reports it as revoked", func(t *testing.T) {
				rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodGet, "/ar/verify/"+cert.VerificationID))
				testutil.AssertStatusOK(t, rr)
				res := testutil.UnmarshalResponse[certhandler.VerificationResponse](t, rr)
				assert.False(t, res.Valid)
				assert.Equal(t, "REVOKED", res.Reason)
			})

			testutil.Then(t, "the dashboard counts it", func(t *testing.T) {
				rr := testutil.DoRequest(s.router, admin(t, testutil.NewRequest(t, http.MethodGet, "/api/admin/stats")))
				testutil.AssertStatusOK(t, rr)
				body := testutil.UnmarshalResponse[map[string]any](t, rr)
				certs, ok := (*body)["certificates"].(map[string]any)
				require.True(t, ok)
				assert.EqualValues(t, 1, certs["REVOKED"])
				assert.EqualValues(t, 0, certs["ACTIVE"])
			})
		})
	})
}
