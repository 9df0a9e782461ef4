package document

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		engine      *mockEngine
		ledger      *mockLedger
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
	)

	// do sends one request through the server under test
	do := func(req *http.Request) *http.Response {
		ghttpServer.AppendHandlers(server.Handler().ServeHTTP)
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	get := func(path string) *http.Response {
		req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+path, nil)
		Expect(err).NotTo(HaveOccurred())
		return do(req)
	}

	post := func(path string, body io.Reader, contentType string) *http.Response {
		req, err := http.NewRequest(http.MethodPost, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		return do(req)
	}

	decodeError := func(resp *http.Response) string {
		var body map[string]string
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
		return body["error"]
	}

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		engine = newMockEngine("ACME Supplies Ltd\nTOTAL 500.00")
		ledger = &mockLedger{id: "BILL-1"}
		auth = BasicAuth{}
		ghttpServer = ghttp.NewServer()
	})

	JustBeforeEach(func() {
		service = NewServiceWithDeps(db, storage, engine, ledger, &mockIDGenerator{id: "test-id"}, &mockTimeSource{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)})
		server = NewServerWithMux(service, auth, http.NewServeMux())
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
		})

		It("should reject requests without credentials", func() {
			resp := get("/api/documents")
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/documents", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "secret")
			Expect(do(req).StatusCode).To(Equal(http.StatusOK))
		})

		It("should leave the health check open", func() {
			Expect(get("/healthz").StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			req, err := http.NewRequest(http.MethodOptions, ghttpServer.URL()+"/api/documents", nil)
			Expect(err).NotTo(HaveOccurred())
			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
		})
	})

	Describe("POST /api/documents", func() {
		var (
			body        *bytes.Buffer
			contentType string
		)

		BeforeEach(func() {
			body = &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			Expect(writer.WriteField("kind", "receipt")).To(Succeed())
			header := textproto.MIMEHeader{}
			header.Set("Content-Disposition", `form-data; name="file"; filename="scan.pdf"`)
			part, err := writer.CreatePart(header)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write([]byte("%PDF-1.4"))
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).To(Succeed())
			contentType = writer.FormDataContentType()
		})

		It("should create the document", func() {
			resp := post("/api/documents", body, contentType)
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var doc Document
			Expect(json.NewDecoder(resp.Body).Decode(&doc)).To(Succeed())
			Expect(doc.Kind).To(Equal(KindReceipt))
			Expect(doc.Status).To(Equal(StatusUploaded))
			Expect(doc.ContentType).To(Equal("application/pdf"))
			Expect(doc.Filename).To(Equal("test-id_scan.pdf"))
		})

		It("should reject a request without a file", func() {
			empty := &bytes.Buffer{}
			writer := multipart.NewWriter(empty)
			Expect(writer.WriteField("kind", "invoice")).To(Succeed())
			Expect(writer.Close()).To(Succeed())

			resp := post("/api/documents", empty, writer.FormDataContentType())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(decodeError(resp)).To(ContainSubstring("No file"))
		})
	})

	Describe("GET /api/documents/{id}", func() {
		BeforeEach(func() {
			db.put(&Document{ID: "1", Label: "OCR-00001"})
			db.lines["1"] = []LineItem{{Name: "Widget", Quantity: 2, UnitPrice: 10}}
		})

		It("should return the document with its line items", func() {
			resp := get("/api/documents/1")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				Document  Document         `json:"document"`
				LineItems []map[string]any `json:"line_items"`
			}
			Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
			Expect(body.Document.Label).To(Equal("OCR-00001"))
			Expect(body.LineItems).To(HaveLen(1))
			Expect(body.LineItems[0]["extension"]).To(Equal(20.0))
		})

		It("should return 404 for a missing document", func() {
			resp := get("/api/documents/9")
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(decodeError(resp)).To(Equal("Document not found"))
		})
	})

	Describe("GET /api/documents", func() {
		BeforeEach(func() {
			db.put(&Document{ID: "1", Status: StatusCompleted})
			db.put(&Document{ID: "2", Status: StatusError})
		})

		It("should filter by status", func() {
			resp := get("/api/documents?status=error")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var docs []Document
			Expect(json.NewDecoder(resp.Body).Decode(&docs)).To(Succeed())
			Expect(docs).To(HaveLen(1))
			Expect(docs[0].ID).To(Equal("2"))
		})
	})

	Describe("GET /api/documents/{id}/file", func() {
		BeforeEach(func() {
			db.put(&Document{ID: "1", Filename: "a.png", ContentType: "image/png"})
			storage.files["a.png"] = []byte("png bytes")
		})

		It("should return the source file", func() {
			resp := get("/api/documents/1/file")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("png bytes")))
		})
	})

	Describe("DELETE /api/documents/{id}", func() {
		BeforeEach(func() {
			db.put(&Document{ID: "1", Filename: "a.png"})
			storage.files["a.png"] = []byte("png bytes")
		})

		It("should delete the document", func() {
			req, err := http.NewRequest(http.MethodDelete, ghttpServer.URL()+"/api/documents/1", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(do(req).StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.doc("1")).To(BeNil())
		})
	})

	Describe("POST /api/documents/{id}/run", func() {
		BeforeEach(func() {
			db.put(&Document{ID: "1", Kind: KindInvoice, Filename: "a.png", ContentType: "image/png", Status: StatusUploaded})
			storage.files["a.png"] = []byte("png bytes")
		})

		It("should run the pipeline", func() {
			resp := post("/api/documents/1/run", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var doc Document
			Expect(json.NewDecoder(resp.Body).Decode(&doc)).To(Succeed())
			Expect(doc.Status).To(Equal(StatusCompleted))
			Expect(doc.TotalAmount).To(Equal(500.0))
		})

		When("a run is already in progress", func() {
			BeforeEach(func() {
				db.put(&Document{ID: "1", Filename: "a.png", Status: StatusProcessing})
			})

			It("should return 409", func() {
				Expect(post("/api/documents/1/run", nil, "").StatusCode).To(Equal(http.StatusConflict))
			})
		})

		When("the file is missing", func() {
			BeforeEach(func() {
				delete(storage.files, "a.png")
			})

			It("should return 400", func() {
				Expect(post("/api/documents/1/run", nil, "").StatusCode).To(Equal(http.StatusBadRequest))
			})
		})
	})

	Describe("POST /api/documents/{id}/rerun", func() {
		BeforeEach(func() {
			db.put(&Document{ID: "1", Filename: "a.png", Status: StatusError, ExtractedText: "old"})
			storage.files["a.png"] = []byte("png bytes")
		})

		It("should run again", func() {
			Expect(post("/api/documents/1/rerun", nil, "").StatusCode).To(Equal(http.StatusOK))
			Expect(db.doc("1").Status).To(Equal(StatusCompleted))
		})
	})

	Describe("POST /api/documents/{id}/review", func() {
		BeforeEach(func() {
			db.put(&Document{ID: "1", Status: StatusError})
		})

		It("should store the reviewed values", func() {
			resp := post("/api/documents/1/review", strings.NewReader(`{"vendor_name":"ACME","total_amount":10.5}`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(db.doc("1").VendorName).To(Equal("ACME"))
			Expect(db.doc("1").Status).To(Equal(StatusCompleted))
		})

		It("should reject a malformed body", func() {
			resp := post("/api/documents/1/review", strings.NewReader(`{`), "application/json")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("POST /api/documents/{id}/bill", func() {
		BeforeEach(func() {
			db.put(&Document{ID: "1", Status: StatusCompleted, Fields: Fields{VendorName: "ACME"}})
		})

		It("should create the bill", func() {
			resp := post("/api/documents/1/bill", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(db.doc("1").BillID).To(Equal("BILL-1"))
		})

		It("should reject a second bill", func() {
			Expect(post("/api/documents/1/bill", nil, "").StatusCode).To(Equal(http.StatusCreated))
			resp := post("/api/documents/1/bill", nil, "")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		When("no ledger is configured", func() {
			JustBeforeEach(func() {
				service = NewServiceWithDeps(db, storage, engine, nil, &mockIDGenerator{id: "test-id"}, &mockTimeSource{})
				server = NewServerWithMux(service, auth, http.NewServeMux())
			})

			It("should return 503", func() {
				Expect(post("/api/documents/1/bill", nil, "").StatusCode).To(Equal(http.StatusServiceUnavailable))
			})
		})
	})

	Describe("GET /api/export.csv", func() {
		BeforeEach(func() {
			db.put(&Document{ID: "1", Label: "OCR-00001", Fields: Fields{VendorName: "ACME", TotalAmount: 5}})
		})

		It("should return CSV", func() {
			resp := get("/api/export.csv")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/csv"))
			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("Name,Vendor,Total,VAT,Confidence\nOCR-00001,ACME,5.00,0.00,0.00\n"))
		})
	})

	Describe("GET /api/stats", func() {
		BeforeEach(func() {
			db.put(&Document{ID: "1", Kind: KindInvoice, Status: StatusCompleted, Fields: Fields{TotalAmount: 5, ConfidenceScore: 0.8}})
		})

		It("should return the dashboard counters", func() {
			resp := get("/api/stats")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var stats Stats
			Expect(json.NewDecoder(resp.Body).Decode(&stats)).To(Succeed())
			Expect(stats.Invoices).To(Equal(1))
			Expect(stats.CompletedTotal).To(Equal(5.0))
			Expect(stats.AverageConfidence).To(Equal(0.8))
		})
	})

	Describe("GET /metrics", func() {
		It("should expose pipeline metrics", func() {
			RecordRun(KindInvoice, StatusCompleted)
			resp := get("/metrics")
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("docscan_pipeline_runs_total"))
		})
	})
})
