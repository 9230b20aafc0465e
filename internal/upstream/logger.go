package upstream

import (
	"log"
	"time"
)

// LogRequest logs an upstream request being made.
func LogRequest(service, method, url string, params map[string]interface{}) {
	if len(params) > 0 {
		log.Printf("[%s] %s %s params=%v", service, method, url, params)
	} else {
		log.Printf("[%s] %s %s", service, method, url)
	}
}

// LogResponse logs an upstream response received.
func LogResponse(service string, statusCode int, duration time.Duration, resultCount int) {
	log.Printf("[%s] response status=%d duration=%dms results=%d",
		service, statusCode, duration.Milliseconds(), resultCount)
}

// LogError logs an error from an upstream operation.
func LogError(service, operation string, err error) {
	log.Printf("[%s] %s error: %v", service, operation, err)
}

// LogRetry logs a failed attempt that will be retried after wait.
func LogRetry(service string, attempt int, wait time.Duration, err error) {
	if service == "" {
		service = "upstream"
	}
	log.Printf("[%s] attempt %d failed, retrying in %s: %v", service, attempt, wait, err)
}

// LogCache logs a cache lookup outcome.
func LogCache(service, key string, hit bool) {
	if hit {
		log.Printf("[%s] cache hit %s", service, key)
	} else {
		log.Printf("[%s] cache miss %s", service, key)
	}
}
