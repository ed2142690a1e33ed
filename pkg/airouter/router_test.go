package airouter_test

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xksnk/selfology-core/pkg/airouter"
	"github.com/xksnk/selfology-core/pkg/circuitbreaker"
	"github.com/xksnk/selfology-core/pkg/shared/errors"
)

func TestAIRouter(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "AI Router Suite")
}

var _ = Describe("InferComplexity", func() {
	// Business Requirement: BR-AI-001 - marker and length based complexity
	// inference per the ordered rule list.
	Context("BR-AI-001: ordered classification rules", func() {
		It("classifies a short message as SIMPLE", func() {
			req := airouter.Request{Message: "yes"}
			Expect(airouter.InferComplexity(req)).To(Equal(airouter.ComplexitySimple))
		})

		It("classifies a long message as DEEP", func() {
			req := airouter.Request{Message: repeat("this is a long reflective message. ", 15)}
			Expect(airouter.InferComplexity(req)).To(Equal(airouter.ComplexityDeep))
		})

		It("classifies a mid-length conversational message as DAILY", func() {
			req := airouter.Request{Message: "Let's chat about how your day went, anything new happening with you lately and how are you feeling?"}
			Expect(airouter.InferComplexity(req)).To(Equal(airouter.ComplexityDaily))
		})

		It("honors a ForceDeep context override regardless of length", func() {
			req := airouter.Request{Message: "ok", ForceDeep: true}
			Expect(airouter.InferComplexity(req)).To(Equal(airouter.ComplexityDeep))
		})

		It("honors a ForceDaily context override over a DEEP marker", func() {
			req := airouter.Request{Message: "psychological check", ForceDaily: true}
			Expect(airouter.InferComplexity(req)).To(Equal(airouter.ComplexityDaily))
		})
	})
})

var _ = Describe("SelectModel", func() {
	Context("BR-AI-002: tier-aware model selection", func() {
		It("never downgrades SIMPLE regardless of tier", func() {
			model, downgraded := airouter.SelectModel(airouter.ComplexitySimple, airouter.TierFree)
			Expect(model).To(Equal(airouter.ModelCheapSmall))
			Expect(downgraded).To(BeFalse())
		})

		It("downgrades DAILY to cheap-small on the free tier", func() {
			model, downgraded := airouter.SelectModel(airouter.ComplexityDaily, airouter.TierFree)
			Expect(model).To(Equal(airouter.ModelCheapSmall))
			Expect(downgraded).To(BeTrue())
		})

		It("gives DEEP the frontier model on a paid tier", func() {
			model, downgraded := airouter.SelectModel(airouter.ComplexityDeep, airouter.TierPremium)
			Expect(model).To(Equal(airouter.ModelFrontier))
			Expect(downgraded).To(BeFalse())
		})

		It("downgrades DEEP to mid on the free tier", func() {
			model, downgraded := airouter.SelectModel(airouter.ComplexityDeep, airouter.TierFree)
			Expect(model).To(Equal(airouter.ModelMid))
			Expect(downgraded).To(BeTrue())
		})
	})
})

type stubClient struct {
	fail map[string]error
}

func (s *stubClient) Complete(ctx context.Context, model, prompt string) (airouter.Completion, error) {
	if err, ok := s.fail[model]; ok {
		return airouter.Completion{}, err
	}
	return airouter.Completion{Text: "ok:" + model}, nil
}

var _ = Describe("Router.Route", func() {
	Context("BR-AI-003: fallback chain gated by circuit breakers", func() {
		It("falls back to the next candidate when the primary breaker is open", func() {
			breakers := circuitbreaker.NewRegistry()
			primary := breakers.GetOrCreate(circuitbreaker.DefaultConfig(airouter.ModelMid))
			for i := 0; i < 5; i++ {
				primary.Call(func() error { return errors.Transient("boom", nil) })
			}
			Expect(primary.State()).To(Equal(circuitbreaker.StateOpen))

			client := &stubClient{fail: map[string]error{}}
			router := airouter.New(client, breakers)

			decision, text, err := router.Route(context.Background(), airouter.Request{
				Tier:    airouter.TierPro,
				Message: "Let's chat about how your day went, anything new happening with you lately and how are you feeling?",
			})

			Expect(err).ToNot(HaveOccurred())
			Expect(decision.Model).To(Equal(airouter.ModelFrontier))
			Expect(text).To(Equal("ok:" + airouter.ModelFrontier))
		})

		It("returns ErrNoModelAvailable when every candidate's breaker is open", func() {
			breakers := circuitbreaker.NewRegistry()
			for _, model := range []string{airouter.ModelCheapSmall, airouter.ModelMid} {
				cb := breakers.GetOrCreate(circuitbreaker.DefaultConfig(model))
				for i := 0; i < 5; i++ {
					cb.Call(func() error { return errors.Transient("boom", nil) })
				}
			}

			client := &stubClient{}
			router := airouter.New(client, breakers)

			_, _, err := router.Route(context.Background(), airouter.Request{
				Tier:    airouter.TierFree,
				Message: "yes",
			})

			Expect(errors.KindOf(err)).To(Equal(errors.KindCapacity))
		})
	})

	Context("metrics", func() {
		It("records a success against the resolved model", func() {
			breakers := circuitbreaker.NewRegistry()
			client := &stubClient{}
			router := airouter.New(client, breakers)

			_, _, err := router.Route(context.Background(), airouter.Request{
				Tier:    airouter.TierPro,
				Message: "yes",
			})
			Expect(err).ToNot(HaveOccurred())

			snap := router.Metrics().Snapshot(airouter.ModelCheapSmall)
			Expect(snap.Successes).To(Equal(int64(1)))
			Expect(router.Metrics().ModelHealth(airouter.ModelCheapSmall)).To(Equal("healthy"))
		})
	})
})

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
