// Package application decide admissões a partir de um domain.Limiter
// (fail-open ou fail-closed) e controla vagas de concorrência com timeout.
// Não conhece net/http.
package application
