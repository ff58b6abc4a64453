// Package domain define os contratos do ciclo de vida de conexões com o banco.
//
// Aqui não existe driver, net/http nem pool concreto: apenas os tipos que as
// três estratégias compartilham (conexão avulsa, lease de pool e execução
// automática) e a taxonomia de erros usada para decidir status HTTP e se uma
// conexão volta para o pool ou é descartada.
package domain
