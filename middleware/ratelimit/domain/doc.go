// Package domain tem os contratos do rate limit: chave, decisão, limiter,
// stats e vagas de concorrência. Implementações ficam em infra.
package domain
