// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
//   - FixedWindowStore: janela fixa por chave em memória (padrão)
//   - RedisWindowStore: janela fixa compartilhada entre instâncias (INCR + PEXPIRE em Lua)
//   - TokenBucketStore: token bucket por chave usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de concorrência
//   - MemoryStatsStore, RedisStatsStore, MultiStats: estatísticas de decisão
package infra
