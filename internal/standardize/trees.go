package standardize

import "github.com/faustostangler/FL2-sub000/internal/model"

// The section trees below define the canonical chart of accounts.
// Section 00 mirrors the capital-composition frame, 01/02 the balance
// sheet, 03 the income statement, 06 the cash flow and 07 the
// value-added statement. Node order matters: later nodes overwrite
// earlier assignments, so the specific lines come after the broad
// ones.

var capitalTree = Tree{
	Section: "Composição do Capital",
	Frame:   "Composição do Capital",
	Nodes: []Node{
		{Target: "00.01.01 - Ações Ordinárias em Circulação", Filters: []Filter{
			{Column: "account", Op: OpEquals, Values: []string{model.AccountSharesON}},
		}},
		{Target: "00.01.02 - Ações Preferenciais em Circulação", Filters: []Filter{
			{Column: "account", Op: OpEquals, Values: []string{model.AccountSharesPN}},
		}},
		{Target: "00.02.01 - Ações Ordinárias em Tesouraria", Filters: []Filter{
			{Column: "account", Op: OpEquals, Values: []string{model.AccountTreasuryON}},
		}},
		{Target: "00.02.02 - Ações Preferenciais em Tesouraria", Filters: []Filter{
			{Column: "account", Op: OpEquals, Values: []string{model.AccountTreasuryPN}},
		}},
	},
}

var balanceAssetTree = Tree{
	Section: "Balanço Ativo",
	Frame:   "Balanço Patrimonial Ativo",
	Nodes: []Node{
		{Target: "01 - Ativo Total", Filters: []Filter{
			{Column: "account", Op: OpLevel, Level: 1},
			{Column: "account", Op: OpStartsWith, Values: []string{"1"}},
		}},
		{Target: "01.01 - Ativo Circulante", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"1"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"ativo circulante"}},
			{Column: "description", Op: OpContainsNone, Values: []string{"não circulante"}},
		}},
		{Target: "01.01.01 - Caixa e Equivalentes de Caixa", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"1"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"caixa e equivalentes", "disponibilidades"}},
		}},
		{Target: "01.01.02 - Aplicações Financeiras", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"1.01"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"aplicações financeiras"}},
		}},
		{Target: "01.01.03 - Contas a Receber", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"1.01"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"contas a receber", "clientes"}},
		}},
		{Target: "01.01.04 - Estoques", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"1.01"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"estoques"}},
		}},
		{Target: "01.02 - Ativo Não Circulante", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"1"}},
			{Column: "description", Op: OpContainsAll, Values: []string{"ativo", "não circulante"}},
		}, Sub: []Node{
			{Target: "01.02.01 - Realizável a Longo Prazo", Filters: []Filter{
				{Column: "description", Op: OpContainsAny, Values: []string{"realizável a longo prazo"}},
			}},
			{Target: "01.02.02 - Investimentos", Filters: []Filter{
				{Column: "description", Op: OpContainsAny, Values: []string{"investimentos"}},
			}},
			{Target: "01.02.03 - Imobilizado", Filters: []Filter{
				{Column: "description", Op: OpContainsAny, Values: []string{"imobilizado"}},
			}},
			{Target: "01.02.04 - Intangível", Filters: []Filter{
				{Column: "description", Op: OpContainsAny, Values: []string{"intangível"}},
			}},
		}},
	},
}

var balanceLiabilityTree = Tree{
	Section: "Balanço Passivo",
	Frame:   "Balanço Patrimonial Passivo",
	Nodes: []Node{
		{Target: "02 - Passivo Total", Filters: []Filter{
			{Column: "account", Op: OpLevel, Level: 1},
			{Column: "account", Op: OpStartsWith, Values: []string{"2"}},
		}},
		{Target: "02.01 - Passivo Circulante", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"2"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"passivo circulante"}},
			{Column: "description", Op: OpContainsNone, Values: []string{"não circulante"}},
		}},
		{Target: "02.02 - Passivo Não Circulante", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"2"}},
			{Column: "description", Op: OpContainsAll, Values: []string{"passivo", "não circulante"}},
		}},
		{Target: "02.03 - Patrimônio Líquido", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"2"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"patrimônio líquido"}},
		}, Sub: []Node{
			{Target: "02.03.01 - Capital Social", Filters: []Filter{
				{Column: "description", Op: OpContainsAny, Values: []string{"capital social"}},
			}},
			{Target: "02.03.02 - Reservas de Capital", Filters: []Filter{
				{Column: "description", Op: OpContainsAny, Values: []string{"reservas de capital"}},
			}},
			{Target: "02.03.03 - Reservas de Lucros", Filters: []Filter{
				{Column: "description", Op: OpContainsAny, Values: []string{"reservas de lucros"}},
			}},
			{Target: "02.03.04 - Lucros ou Prejuízos Acumulados", Filters: []Filter{
				{Column: "description", Op: OpContainsAny, Values: []string{"prejuízos acumulados"}},
			}},
		}},
	},
}

var incomeTree = Tree{
	Section: "DRE",
	Frame:   "Demonstração do Resultado",
	Nodes: []Node{
		{Target: "03.01 - Receita Líquida", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"3"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"receita de venda", "receita líquida"}},
		}},
		{Target: "03.02 - Custo dos Bens e Serviços", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"3"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"custo dos bens", "custo dos produtos", "custo dos serviços"}},
		}},
		{Target: "03.03 - Resultado Bruto", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"3"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"resultado bruto", "lucro bruto"}},
		}},
		{Target: "03.04 - Despesas e Receitas Operacionais", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"3"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"despesas receitas operacionais", "despesas operacionais"}},
		}},
		{Target: "03.05 - Resultado Financeiro", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"3"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"resultado financeiro"}},
		}},
		{Target: "03.06 - Resultado Antes dos Tributos", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"3"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"antes dos tributos", "antes do imposto"}},
		}},
		{Target: "03.09 - Lucro ou Prejuízo Líquido", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"3"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"lucro ou prejuízo líquido", "lucro líquido", "prejuízo do período"}},
			{Column: "description", Op: OpNotContains, Values: []string{"por ação"}},
		}},
	},
}

var cashFlowTree = Tree{
	Section: "DFC",
	Frame:   "Demonstração do Fluxo de Caixa",
	Nodes: []Node{
		{Target: "06.01 - Caixa das Atividades Operacionais", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"6"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"atividades operacionais"}},
		}},
		{Target: "06.02 - Caixa das Atividades de Investimento", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"6"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"atividades de investimento"}},
		}},
		{Target: "06.03 - Caixa das Atividades de Financiamento", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"6"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"atividades de financiamento"}},
		}},
		{Target: "06.04 - Variação Cambial sobre Caixa", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"6"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"variação cambial"}},
		}},
		{Target: "06.05 - Aumento ou Redução de Caixa", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"6"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"aumento ou redução de caixa", "variação de caixa"}},
		}},
	},
}

var valueAddedTree = Tree{
	Section: "DVA",
	Frame:   "Demonstração de Valor Adicionado",
	Nodes: []Node{
		{Target: "07.01 - Receitas", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"7"}},
			{Column: "description", Op: OpEquals, Values: []string{"receitas"}},
		}},
		{Target: "07.02 - Insumos Adquiridos de Terceiros", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"7"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"insumos adquiridos"}},
		}},
		{Target: "07.03 - Valor Adicionado Bruto", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"7"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"valor adicionado bruto"}},
		}},
		{Target: "07.04 - Retenções", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"7"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"retenções", "depreciação, amortização"}},
		}},
		{Target: "07.05 - Valor Adicionado Líquido", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"7"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"valor adicionado líquido"}},
		}},
		{Target: "07.08 - Distribuição do Valor Adicionado", Filters: []Filter{
			{Column: "account", Op: OpStartsWith, Values: []string{"7"}},
			{Column: "description", Op: OpContainsAny, Values: []string{"distribuição do valor adicionado"}},
		}},
	},
}

// sectionTrees in classification order.
var sectionTrees = []Tree{
	capitalTree,
	balanceAssetTree,
	balanceLiabilityTree,
	incomeTree,
	cashFlowTree,
	valueAddedTree,
}
