// Package mocks provides shared test doubles.
//
// # Usage
//
//	import "contextcore/internal/mocks"
//
//	func TestSomething(t *testing.T) {
//	    summarizer := mocks.NewMockLLMClient()
//	    summarizer.RespondWith("the agent fixed the build")
//	    // Pass summarizer to condenser.NewLLMSummarizing...
//	}
//
// # Available Mocks
//
//   - MockLLMClient: Mock for the llm.LLMClient summarizer interface
//   - BlockingLLMClient: a summarizer that blocks until its context is cancelled
package mocks
