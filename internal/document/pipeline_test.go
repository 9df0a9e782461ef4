package document

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/docscan/internal/ocr"
)

var _ = Describe("Pipeline", func() {
	var (
		db       *mockDB
		storage  *mockStorage
		engine   *mockEngine
		timeSrc  *mockTimeSource
		pipeline *Pipeline
		doc      *Document
		result   *Document
		err      error
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		engine = newMockEngine("ACME Supplies Ltd\nTOTAL 500.00")
		timeSrc = &mockTimeSource{now: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
		pipeline = NewPipeline(db, storage, engine, timeSrc)

		doc = &Document{
			ID:          "1",
			Label:       "OCR-00001",
			Kind:        KindInvoice,
			Filename:    "abc_invoice.png",
			ContentType: "image/png",
			Status:      StatusUploaded,
		}
		storage.files["abc_invoice.png"] = []byte("fake image data")
	})

	JustBeforeEach(func() {
		db.put(doc)
	})

	Describe("Run", func() {
		JustBeforeEach(func() {
			result, err = pipeline.Run(context.Background(), "1")
		})

		When("the engine returns text with a total and no rows", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should complete the document", func() {
				Expect(result.Status).To(Equal(StatusCompleted))
				Expect(result.Progress).To(Equal(100))
			})

			It("should store the extracted header fields", func() {
				stored := db.doc("1")
				Expect(stored.VendorName).To(Equal("ACME Supplies Ltd"))
				Expect(stored.TotalAmount).To(Equal(500.0))
				Expect(stored.ConfidenceScore).To(BeNumerically("~", 0.75, 1e-9))
			})

			It("should keep the raw text", func() {
				Expect(db.doc("1").ExtractedText).To(Equal("ACME Supplies Ltd\nTOTAL 500.00"))
			})

			It("should create a single fallback line for the total", func() {
				Expect(db.lines["1"]).To(Equal([]LineItem{
					{Name: "ACME Supplies Ltd total", Quantity: 1, UnitPrice: 500},
				}))
			})

			It("should append the extraction summary to the log", func() {
				log := db.doc("1").ExtractionLog
				Expect(log).To(HavePrefix("=== OCR Extraction ==="))
				Expect(log).To(ContainSubstring("Engine: mock"))
				Expect(log).To(ContainSubstring("Vendor: ACME Supplies Ltd"))
				Expect(log).To(ContainSubstring("Total: 500.00"))
				Expect(log).To(ContainSubstring("Confidence: 0.75"))
				Expect(log).To(ContainSubstring("Matched: vendor, total"))
			})

			It("should pass an image payload to the engine", func() {
				Expect(engine.kinds).To(Equal([]ocr.Kind{ocr.KindImage}))
			})
		})

		When("the text has three item rows and no total", func() {
			BeforeEach(func() {
				engine.text = "2 Widget 10.00\n3 Bolt 1.50\n1 Panel 99.99"
			})

			It("should create one line per row with computed extensions", func() {
				lines := db.lines["1"]
				Expect(lines).To(HaveLen(3))
				Expect(lines[0].Extension()).To(Equal(20.0))
				Expect(lines[1].Extension()).To(Equal(4.5))
				Expect(lines[2].Extension()).To(Equal(99.99))
			})
		})

		When("the document is a PDF", func() {
			BeforeEach(func() {
				doc.ContentType = "application/pdf"
			})

			It("should pass a document payload to the engine", func() {
				Expect(engine.kinds).To(Equal([]ocr.Kind{ocr.KindDocument}))
			})
		})

		When("the engine fails", func() {
			BeforeEach(func() {
				engine.err = errors.New("engine unreachable")
				doc.Status = StatusCompleted
				doc.VendorName = "Old Vendor"
				doc.TotalAmount = 120
				doc.ExtractedText = "old text"
				doc.ExtractionLog = "old log"
				db.lines["1"] = []LineItem{{Name: "Old line", Quantity: 1, UnitPrice: 120}}
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should mark the document as failed", func() {
				Expect(result.Status).To(Equal(StatusError))
				Expect(result.Progress).To(Equal(100))
			})

			It("should append the failure to the log", func() {
				Expect(db.doc("1").ExtractionLog).To(Equal("old log\nOCR ERROR: engine unreachable"))
			})

			It("should keep the previous extraction", func() {
				stored := db.doc("1")
				Expect(stored.VendorName).To(Equal("Old Vendor"))
				Expect(stored.TotalAmount).To(Equal(120.0))
				Expect(stored.ExtractedText).To(Equal("old text"))
				Expect(db.lines["1"]).To(HaveLen(1))
			})
		})

		When("the engine panics", func() {
			BeforeEach(func() {
				engine.panics = "corrupt HEIC header"
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should mark the document as failed", func() {
				stored := db.doc("1")
				Expect(stored.Status).To(Equal(StatusError))
				Expect(stored.Progress).To(Equal(100))
				Expect(stored.ExtractionLog).To(Equal("OCR ERROR: engine panic: corrupt HEIC header"))
			})

			It("should allow a rerun", func() {
				engine.panics = nil
				doc, err := pipeline.Rerun(context.Background(), "1")
				Expect(err).NotTo(HaveOccurred())
				Expect(doc.Status).To(Equal(StatusCompleted))
			})
		})

		When("the source file is missing", func() {
			BeforeEach(func() {
				delete(storage.files, "abc_invoice.png")
			})

			It("should return a validation error", func() {
				Expect(IsValidation(err)).To(BeTrue())
			})

			It("should not touch the document", func() {
				Expect(db.doc("1").Status).To(Equal(StatusUploaded))
				Expect(db.doc("1").Progress).To(Equal(0))
			})

			It("should not call the engine", func() {
				Expect(engine.callCount()).To(Equal(0))
			})
		})

		When("no file was uploaded", func() {
			BeforeEach(func() {
				doc.Filename = ""
			})

			It("should return a validation error", func() {
				Expect(IsValidation(err)).To(BeTrue())
				Expect(engine.callCount()).To(Equal(0))
			})
		})

		When("the source file is empty", func() {
			BeforeEach(func() {
				storage.files["abc_invoice.png"] = []byte{}
			})

			It("should return a validation error", func() {
				Expect(IsValidation(err)).To(BeTrue())
			})
		})

		When("the document does not exist", func() {
			BeforeEach(func() {
				doc.ID = "2"
			})

			It("should return ErrNotFound", func() {
				Expect(err).To(MatchError(ErrNotFound))
			})
		})

		When("the document is already processing", func() {
			BeforeEach(func() {
				doc.Status = StatusProcessing
			})

			It("should return ErrRunInProgress", func() {
				Expect(err).To(MatchError(ErrRunInProgress))
				Expect(engine.callCount()).To(Equal(0))
			})
		})

		When("saving the extraction fails", func() {
			BeforeEach(func() {
				db.commitErr = errors.New("disk full")
			})

			It("should return the error", func() {
				Expect(err).To(MatchError(ContainSubstring("disk full")))
			})

			It("should leave the document re-runnable", func() {
				stored := db.doc("1")
				Expect(stored.Status).To(Equal(StatusError))
				Expect(stored.ExtractionLog).To(ContainSubstring("saving extraction: disk full"))
			})
		})
	})

	Describe("Rerun", func() {
		BeforeEach(func() {
			doc.Status = StatusCompleted
			doc.VendorName = "Old Vendor"
			doc.TotalAmount = 120
			doc.ExtractedText = "old text"
			doc.ExtractionLog = "old log"
			db.lines["1"] = []LineItem{{Name: "Old line", Quantity: 1, UnitPrice: 120}}
		})

		JustBeforeEach(func() {
			result, err = pipeline.Rerun(context.Background(), "1")
		})

		When("the engine succeeds", func() {
			It("should replace the line items", func() {
				Expect(db.lines["1"]).To(Equal([]LineItem{
					{Name: "ACME Supplies Ltd total", Quantity: 1, UnitPrice: 500},
				}))
			})

			It("should start a fresh log", func() {
				Expect(db.doc("1").ExtractionLog).NotTo(ContainSubstring("old log"))
			})
		})

		When("the engine fails", func() {
			BeforeEach(func() {
				engine.err = errors.New("timeout")
			})

			It("should clear the raw text and previous log", func() {
				stored := db.doc("1")
				Expect(stored.ExtractedText).To(BeEmpty())
				Expect(stored.ExtractionLog).To(Equal("OCR ERROR: timeout"))
			})

			It("should keep header fields and line items", func() {
				stored := db.doc("1")
				Expect(stored.VendorName).To(Equal("Old Vendor"))
				Expect(stored.TotalAmount).To(Equal(120.0))
				Expect(db.lines["1"]).To(Equal([]LineItem{{Name: "Old line", Quantity: 1, UnitPrice: 120}}))
			})

			It("should mark the document as failed", func() {
				Expect(result.Status).To(Equal(StatusError))
			})
		})
	})

	Describe("concurrent runs", func() {
		var (
			firstDone chan error
			firstErr  error
			secondErr error
		)

		JustBeforeEach(func() {
			engine.started = make(chan struct{}, 1)
			engine.release = make(chan struct{})
			firstDone = make(chan error, 1)

			go func() {
				defer GinkgoRecover()
				_, runErr := pipeline.Run(context.Background(), "1")
				firstDone <- runErr
			}()

			Eventually(engine.started).Should(Receive())
			_, secondErr = pipeline.Run(context.Background(), "1")
			close(engine.release)
			Eventually(firstDone).Should(Receive(&firstErr))
		})

		It("should reject the second run", func() {
			Expect(secondErr).To(MatchError(ErrRunInProgress))
		})

		It("should let the first run finish", func() {
			Expect(firstErr).NotTo(HaveOccurred())
			Expect(db.doc("1").Status).To(Equal(StatusCompleted))
			Expect(db.lines["1"]).To(HaveLen(1))
		})

		It("should call the engine once", func() {
			Expect(engine.callCount()).To(Equal(1))
		})
	})

	Describe("RecoverInterrupted", func() {
		var recovered int

		BeforeEach(func() {
			doc.Status = StatusProcessing
			doc.Progress = 10
		})

		JustBeforeEach(func() {
			db.put(&Document{ID: "2", Status: StatusCompleted, Progress: 100})
			recovered, err = pipeline.RecoverInterrupted()
		})

		It("should mark stuck documents as failed", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(recovered).To(Equal(1))
			Expect(db.doc("1").Status).To(Equal(StatusError))
			Expect(db.doc("1").ExtractionLog).To(ContainSubstring("interrupted"))
		})

		It("should leave finished documents alone", func() {
			Expect(db.doc("2").Status).To(Equal(StatusCompleted))
		})
	})
})
