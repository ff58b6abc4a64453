// Package ratelimit fornece adapters HTTP (net/http) para rate limit e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão allow/deny, fail-open, acquire/timeout)
//   - infra: implementações concretas (janela fixa em memória/Redis, token bucket, semáforo, stats)
//   - ratelimit (este pacote): middlewares HTTP + extração de chave + tradução para status/headers
//
// Fluxo por requisição:
//
//  1. Extrai a chave do cliente (header/XFF/IP)
//  2. Pede a decisão para a camada application
//  3. Se bloqueado, responde 429 com {error, message} e Retry-After
//     (ou 503 no limite de concorrência)
//  4. Se permitido, chama o próximo handler
package ratelimit
